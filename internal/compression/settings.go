package compression

import "kinescope/internal/config"

// Multiplier bounds for the adaptive bitrate adjustment.
const (
	MinMultiplier = 0.4
	MaxMultiplier = 2.0
)

// Settings describe one encode pass. Only the controller mutates the
// multiplier; everything else comes from configuration.
type Settings struct {
	Width            int
	Height           int
	Codec            string
	BaseBitrateKbps  int
	Multiplier       float64
	KeyframeInterval int
}

// SettingsFromConfig builds baseline settings with a neutral multiplier.
func SettingsFromConfig(cfg config.Compression) Settings {
	return Settings{
		Width:            cfg.Width,
		Height:           cfg.Height,
		Codec:            cfg.Codec,
		BaseBitrateKbps:  cfg.BaseBitrateKbps,
		Multiplier:       1.0,
		KeyframeInterval: cfg.KeyframeInterval,
	}
}

// EffectiveBitrateKbps applies the multiplier to the base bitrate.
func (s Settings) EffectiveBitrateKbps() int {
	return int(float64(s.BaseBitrateKbps) * s.Multiplier)
}

func clampMultiplier(value float64) float64 {
	if value < MinMultiplier {
		return MinMultiplier
	}
	if value > MaxMultiplier {
		return MaxMultiplier
	}
	return value
}
