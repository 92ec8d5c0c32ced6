package relay

import (
	"fmt"
	"time"
)

const (
	MinSpeed     = 1
	MaxSpeed     = 10
	DefaultSpeed = 5
)

// ClampSpeed は速度を[MinSpeed, MaxSpeed]に収める
func ClampSpeed(speed int) int {
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

// Timing はステッピングモーターの回転から噴射までの待ち時間を求めるための定数
type Timing struct {
	// SpeedTable は速度1〜10ごとの1パルスあたりの遅延（秒）
	SpeedTable     [MaxSpeed]float64 `yaml:"speed_table"`
	Ratio          float64           `yaml:"ratio"`           // 基本補正係数
	MicroStep      float64           `yaml:"micro_step"`      // マイクロステップ数
	StepAngle      float64           `yaml:"step_angle"`      // 1ステップの角度（度）
	GearRatio      float64           `yaml:"gear_ratio"`      // ギア比
	RemoveAngle    float64           `yaml:"remove_angle"`    // 撮影位置から除去口までの角度
	TransportAngle float64           `yaml:"transport_angle"` // 撮影位置から運搬口までの角度
}

// DefaultTiming は実機の設定値
func DefaultTiming() Timing {
	return Timing{
		SpeedTable: [MaxSpeed]float64{
			0.0010, // 1: 回転遅い
			0.0009,
			0.0008,
			0.0007,
			0.0006, // 5: 基準
			0.0005,
			0.0004,
			0.0003,
			0.0002,
			0.0001, // 10: 回転速い
		},
		Ratio:          1.0,
		MicroStep:      32,
		StepAngle:      1.8,
		GearRatio:      2,
		RemoveAngle:    90,
		TransportAngle: 135,
	}
}

// Validate は定数の妥当性を検証する
func (t Timing) Validate() error {
	for i, d := range t.SpeedTable {
		if d <= 0 {
			return fmt.Errorf("速度 %d の遅延は正の値である必要があります: %v", i+1, d)
		}
		if i > 0 && d > t.SpeedTable[i-1] {
			return fmt.Errorf("速度テーブルは速度が上がるほど遅延が小さくなる必要があります（速度 %d）", i+1)
		}
	}
	if t.Ratio <= 0 || t.MicroStep <= 0 || t.StepAngle <= 0 || t.GearRatio <= 0 {
		return fmt.Errorf("モーター定数は正の値である必要があります")
	}
	if t.RemoveAngle < 0 || t.TransportAngle < 0 {
		return fmt.Errorf("チャンネルの角度は0以上である必要があります")
	}
	return nil
}

// rotationSeconds は1回転にかかる秒数を返す
func (t Timing) rotationSeconds(speed int) float64 {
	delay := t.SpeedTable[ClampSpeed(speed)-1]
	onePulse := delay * 2
	stepsPerRotation := t.Ratio * (360 / t.StepAngle) * t.MicroStep
	return onePulse * stepsPerRotation * t.GearRatio
}

// ChannelDelaySeconds はチャンネルごとの待ち時間（秒）を返す
func (t Timing) ChannelDelaySeconds(speed int) (remove, transport float64) {
	sec := t.rotationSeconds(speed)
	return sec * (t.RemoveAngle / 360), sec * (t.TransportAngle / 360)
}

// ChannelDelay はチャンネルごとの待ち時間を返す
func (t Timing) ChannelDelay(speed int) (remove, transport time.Duration) {
	r, tr := t.ChannelDelaySeconds(speed)
	return seconds(r), seconds(tr)
}

// DelayFor は指定チャンネルの待ち時間を返す
func (t Timing) DelayFor(ch Channel, speed int) (time.Duration, error) {
	remove, transport := t.ChannelDelay(speed)
	switch ch {
	case Remove:
		return remove, nil
	case Transport:
		return transport, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, int(ch))
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
