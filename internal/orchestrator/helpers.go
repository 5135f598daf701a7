package orchestrator

import (
	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/daynight"
	"github.com/divinus-go/camerad/internal/osd"
)

// nightConfigFrom maps the YAML night_mode section onto daynight.Config;
// both use the same raw pin encoding (§6: "999 = disabled").
func nightConfigFrom(c config.NightMode) daynight.Config {
	return daynight.Config{
		Enable:            c.Enable,
		Manual:            c.Manual,
		HasISPThresholds:  c.IspLumLow != 0 || c.IspLumHi != 0,
		IspLumLow:         c.IspLumLow,
		IspLumHi:          c.IspLumHi,
		AdcDevice:         c.AdcDevice,
		AdcThreshold:      c.AdcThreshold,
		IrSensorPin:       c.IrSensorPin,
		IrCutPin1:         c.IrCutPin1,
		IrCutPin2:         c.IrCutPin2,
		IrLedPin:          c.IrLedPin,
		WhiteLedPin:       c.WhiteLedPin,
		PinSwitchDelayUs:  c.PinSwitchDelayUs,
		CheckIntervalS:    c.CheckIntervalS,
		IspSwitchLockoutS: c.IspSwitchLockoutS,
	}
}

// regionFromConfig maps one YAML osd.regions[] entry onto osd.Region.
func regionFromConfig(r config.OSDRegion) osd.Region {
	return osd.Region{
		ID:                 r.ID,
		Persist:            r.Persist,
		Text:               r.Text,
		ImagePath:          r.ImagePath,
		FontSpec:           r.FontSpec,
		Size:               r.Size,
		ColorRGB555:        uint16(r.ColorRGB555),
		OutlineColorRGB555: uint16(r.OutlineColorRGB555),
		OutlineThickness:   r.OutlineThickness,
		PositionX:          r.PositionX,
		PositionY:          r.PositionY,
		OpacityFG:          uint8(r.OpacityFG),
		OpacityBG:          uint8(r.OpacityBG),
		BgColorRGB555:      uint16(r.BgColorRGB555),
		Padding:            r.Padding,
	}
}
