package ledger

import (
	"fmt"
	"strings"
)

// Label は判定結果の分類
type Label int

const (
	Mold      Label = iota // カビ
	Immature               // 未熟果
	Healthy                // 健全果
	StemCrack              // 果梗裂果
)

// Labels は全分類（表示順）
var Labels = []Label{Mold, Immature, Healthy, StemCrack}

// labelView は分類ごとの表示用の情報
type labelView struct {
	name    string
	display string
	color   string
}

var labelViews = map[Label]labelView{
	Mold:      {name: "mold", display: "カビ", color: "#EE82EE"},
	Immature:  {name: "immature", display: "未熟果", color: "#FFFF00"},
	Healthy:   {name: "healthy", display: "健全果", color: "#FFFFFF"},
	StemCrack: {name: "stem_crack", display: "果梗裂果", color: "#0040FF"},
}

func (l Label) String() string {
	if v, ok := labelViews[l]; ok {
		return v.name
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Display は画面に表示する名前を返す
func (l Label) Display() string { return labelViews[l].display }

// Color は表示色を返す
func (l Label) Color() string { return labelViews[l].color }

// Valid は定義済みの分類かどうかを返す
func (l Label) Valid() bool {
	_, ok := labelViews[l]
	return ok
}

// ParseLabel は名前（mold等）または表示名（カビ等）から分類を得る
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	for _, l := range Labels {
		v := labelViews[l]
		if strings.EqualFold(v.name, s) || v.display == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("不明な判定結果: %q", s)
}

// MarshalText は名前として書き出す
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("不明な判定結果: %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText は名前から読み込む
func (l *Label) UnmarshalText(b []byte) error {
	v, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
