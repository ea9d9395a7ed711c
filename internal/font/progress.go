package font

// Phase はサブセット処理の固定フェーズです。
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseSubsetting  Phase = "subsetting"
	PhaseOptimizing  Phase = "optimizing"
	PhaseCompressing Phase = "compressing"
	PhaseComplete    Phase = "complete"
)

// フェーズごとの進捗率は固定値です。外部コラボレーターが細粒度の進捗を
// 公開しないため、実測ではなく契約として扱います。
const (
	percentAnalyzing   = 10
	percentSubsetting  = 30
	percentOptimizing  = 80
	percentCompressing = 85
	percentComplete    = 100
)

// ProgressState は1回の進捗通知の内容です。
type ProgressState struct {
	Phase       Phase     `json:"phase"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	CurrentFile string    `json:"currentFile,omitempty"`
	Error       *AppError `json:"error,omitempty"`
}

// ProgressReporter は進捗更新用コールバックです。ジョブごとに1つ渡され、
// フェーズ遷移のたびに順序どおり呼び出されます。
type ProgressReporter func(state ProgressState)

func reportProgress(cb ProgressReporter, state ProgressState) {
	if cb == nil {
		return
	}
	if state.Progress < 0 {
		state.Progress = 0
	}
	if state.Progress > 100 {
		state.Progress = 100
	}
	cb(state)
}
