// Package cancel はリクエスター単位・全体のキャンセルフラグを管理します。
package cancel

import "sync"

// Registry はキャンセルフラグの共有レジストリです。キャンセルは協調的で、
// ジョブランナーがフェーズ境界で IsCancelled を確認することで効力を持ちます。
// 複数ゴルーチンから参照されるため mutex で保護します。
type Registry struct {
	mu     sync.Mutex
	global bool
	flags  map[string]bool
}

// NewRegistry は空のレジストリを作成します。
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]bool)}
}

// Cancel はキャンセルフラグを立てます。requesterID が空の場合は全体
// キャンセルになります。
func (r *Registry) Cancel(requesterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requesterID == "" {
		r.global = true
		return
	}
	r.flags[requesterID] = true
}

// IsCancelled は全体フラグまたは該当リクエスターのフラグが立っていれば
// true を返します。
func (r *Registry) IsCancelled(requesterID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global {
		return true
	}
	if requesterID == "" {
		return false
	}
	return r.flags[requesterID]
}

// Reset はキャンセル状態を解除します。requesterID が空の場合は全体フラグと
// 全リクエスターのフラグを解除します。
func (r *Registry) Reset(requesterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requesterID == "" {
		r.global = false
		r.flags = make(map[string]bool)
		return
	}
	delete(r.flags, requesterID)
}
