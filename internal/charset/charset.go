// Package charset は文字セットプリセットの登録と、リクエストから
// 実効文字セットへの解決を提供します。
package charset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	// ErrUnknownPreset は存在しないプリセットIDを指定した場合のエラーです。
	ErrUnknownPreset = errors.New("unknown preset id")
	// ErrEmptySet は解決結果の文字セットが空になった場合のエラーです。
	ErrEmptySet = errors.New("effective character set is empty")
	// ErrAmbiguousSource はプリセットIDとカスタムテキストを同時に指定した場合のエラーです。
	ErrAmbiguousSource = errors.New("specify either preset id or custom text, not both")
)

// Category はプリセットの分類です。
type Category string

const (
	CategoryScript    Category = "script"
	CategoryKanji     Category = "kanji"
	CategoryComposite Category = "composite"
)

// Preset は事前展開済みの文字セットです。Characters は重複のない
// 初出順の文字列で、カタログ構築後は変更されません。
type Preset struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"displayName"`
	Description    string     `json:"description"`
	Characters     string     `json:"-"`
	CharacterCount int        `json:"characterCount"`
	Categories     []Category `json:"categories"`
}

// Source はプリセットIDまたはカスタムテキストのどちらか一方を指定します。
type Source struct {
	PresetID   string `json:"presetId,omitempty"`
	CustomText string `json:"customText,omitempty"`
}

// Catalog はプリセットの静的レジストリです。プロセス起動時に一度だけ
// 構築され、以降は読み取り専用です。
type Catalog struct {
	presets map[string]*Preset
	order   []string
}

// NewCatalog はプリセットカタログを構築します。漢字級はサブテーブルの
// 連結順で構成するため、N5⊆N4⊆N3⊆N2⊆N1⊆常用 の包含関係が構築時に保証
// されます。
func NewCatalog() *Catalog {
	c := &Catalog{presets: make(map[string]*Preset)}

	kana := hiraganaTable + katakanaTable
	minimum := asciiPrintable() + punctuationTable + kana

	tiers := []struct {
		id          string
		displayName string
		description string
		table       string
	}{
		{"jlpt-n5", "JLPT N5", "日本語能力試験N5レベルの基礎漢字とかな・英数字", kanjiN5Table},
		{"jlpt-n4", "JLPT N4", "N5を含むN4レベルまでの漢字とかな・英数字", kanjiN4Table},
		{"jlpt-n3", "JLPT N3", "N4を含むN3レベルまでの漢字とかな・英数字", kanjiN3Table},
		{"jlpt-n2", "JLPT N2", "N3を含むN2レベルまでの漢字とかな・英数字", kanjiN2Table},
		{"jlpt-n1", "JLPT N1", "N2を含むN1レベルまでの漢字とかな・英数字", kanjiN1Table},
		{"joyo", "常用漢字", "常用漢字表の全漢字とかな・英数字", joyoTable},
	}

	c.register(&Preset{
		ID:          "ascii",
		DisplayName: "英数字・基本記号",
		Description: "ASCII印字可能文字",
		Characters:  Dedup(asciiPrintable()),
		Categories:  []Category{CategoryScript},
	})
	c.register(&Preset{
		ID:          "hiragana",
		DisplayName: "ひらがな",
		Description: "ひらがな全文字と長音・繰り返し記号",
		Characters:  Dedup(hiraganaTable),
		Categories:  []Category{CategoryScript},
	})
	c.register(&Preset{
		ID:          "katakana",
		DisplayName: "カタカナ",
		Description: "カタカナ全文字と中黒・長音記号",
		Characters:  Dedup(katakanaTable),
		Categories:  []Category{CategoryScript},
	})
	c.register(&Preset{
		ID:          "kana",
		DisplayName: "ひらがな＋カタカナ",
		Description: "ひらがなとカタカナの複合セット",
		Characters:  Dedup(kana),
		Categories:  []Category{CategoryScript, CategoryComposite},
	})
	c.register(&Preset{
		ID:          "minimum",
		DisplayName: "最小セット",
		Description: "Webページの日本語表示に最低限必要な英数字・約物・かな",
		Characters:  Dedup(minimum),
		Categories:  []Category{CategoryComposite},
	})

	// 漢字級は下位級との累積で構築する
	accum := minimum
	for _, tier := range tiers {
		accum += tier.table
		c.register(&Preset{
			ID:          tier.id,
			DisplayName: tier.displayName,
			Description: tier.description,
			Characters:  Dedup(accum),
			Categories:  []Category{CategoryKanji, CategoryComposite},
		})
	}

	return c
}

func (c *Catalog) register(p *Preset) {
	p.CharacterCount = uniseg.GraphemeClusterCount(p.Characters)
	c.presets[p.ID] = p
	c.order = append(c.order, p.ID)
}

// Get はIDに対応するプリセットを返します。
func (c *Catalog) Get(id string) (*Preset, bool) {
	p, ok := c.presets[id]
	return p, ok
}

// List は登録順のプリセット一覧を返します。
func (c *Catalog) List() []*Preset {
	list := make([]*Preset, 0, len(c.order))
	for _, id := range c.order {
		list = append(list, c.presets[id])
	}
	return list
}

// Resolve はプリセットIDまたはカスタムテキストを実効文字セットへ解決します。
func (c *Catalog) Resolve(src Source) (string, error) {
	presetID := strings.TrimSpace(src.PresetID)
	if presetID != "" && src.CustomText != "" {
		return "", ErrAmbiguousSource
	}

	if presetID != "" {
		p, ok := c.presets[presetID]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownPreset, presetID)
		}
		return p.Characters, nil
	}

	deduped := Dedup(src.CustomText)
	if deduped == "" {
		return "", ErrEmptySet
	}
	return deduped, nil
}

// Dedup は文字列から重複を取り除き、初出順を保った文字セットを返します。
// 単位は書記素クラスタ（uniseg）なので、サロゲートペアはもちろん、基底文字に
// 続く結合文字も分断されません。
func Dedup(s string) string {
	if s == "" {
		return ""
	}
	seen := make(map[string]struct{})
	var b strings.Builder
	state := -1
	rest := s
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if _, ok := seen[cluster]; ok {
			continue
		}
		seen[cluster] = struct{}{}
		b.WriteString(cluster)
	}
	return b.String()
}

// asciiPrintable はASCII印字可能文字（U+0020〜U+007E）を返します。
func asciiPrintable() string {
	var b strings.Builder
	for r := rune(0x20); r <= 0x7e; r++ {
		b.WriteRune(r)
	}
	return b.String()
}
