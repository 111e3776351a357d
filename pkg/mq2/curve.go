package mq2

import (
	"fmt"
	"math"
	"strings"
)

// Gas identifies one of the target gases of the MQ-2.
type Gas int

const (
	LPG Gas = iota
	CO
	Smoke
)

// Gases lists every supported gas in report order.
var Gases = [...]Gas{LPG, CO, Smoke}

func (g Gas) String() string {
	switch g {
	case LPG:
		return "lpg"
	case CO:
		return "co"
	case Smoke:
		return "smoke"
	}
	return fmt.Sprintf("gas(%d)", int(g))
}

func (g Gas) valid() bool { return g >= LPG && g <= Smoke }

// ParseGas accepts the names produced by Gas.String, case-insensitively.
func ParseGas(s string) (Gas, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lpg":
		return LPG, nil
	case "co":
		return CO, nil
	case "smoke":
		return Smoke, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGas, s)
}

// Curve is a line on the datasheet's log-log plot: it passes through
// (X0, Y0) = (log10(ppm), log10(Rs/Ro)) with the given slope.
type Curve struct {
	X0    float64 `json:"x0" yaml:"x0"`
	Y0    float64 `json:"y0" yaml:"y0"`
	Slope float64 `json:"slope" yaml:"slope"`
}

var (
	LPGCurve   = Curve{X0: 2.3, Y0: 0.21, Slope: -0.47}
	COCurve    = Curve{X0: 2.3, Y0: 0.72, Slope: -0.34}
	SmokeCurve = Curve{X0: 2.3, Y0: 0.53, Slope: -0.44}
)

// Percentage converts an Rs/Ro ratio into ppm.
func Percentage(ratio float64, c Curve) (float64, error) {
	if c.Slope == 0 {
		return 0, ErrZeroSlope
	}
	if !(ratio > 0) || math.IsInf(ratio, 1) {
		return 0, fmt.Errorf("%w: %v", ErrNonPositiveRatio, ratio)
	}
	return math.Pow(10, (math.Log10(ratio)-c.Y0)/c.Slope+c.X0), nil
}

// Ratio is the inverse of Percentage: the Rs/Ro ratio at which the curve
// reports ppm.
func (c Curve) Ratio(ppm float64) float64 {
	return math.Pow(10, c.Y0+c.Slope*(math.Log10(ppm)-c.X0))
}

// Curves holds one curve per gas.
type Curves struct {
	LPG   Curve `json:"lpg" yaml:"lpg"`
	CO    Curve `json:"co" yaml:"co"`
	Smoke Curve `json:"smoke" yaml:"smoke"`
}

func DefaultCurves() Curves {
	return Curves{LPG: LPGCurve, CO: COCurve, Smoke: SmokeCurve}
}

// Curve returns the curve for gas g.
func (cs Curves) Curve(g Gas) (Curve, error) {
	switch g {
	case LPG:
		return cs.LPG, nil
	case CO:
		return cs.CO, nil
	case Smoke:
		return cs.Smoke, nil
	}
	return Curve{}, fmt.Errorf("%w: %v", ErrUnknownGas, g)
}

// Validate rejects curves whose slope is zero.
func (cs Curves) Validate() error {
	for _, g := range Gases {
		c, _ := cs.Curve(g)
		if c.Slope == 0 {
			return fmt.Errorf("%s curve: %w", g, ErrZeroSlope)
		}
	}
	return nil
}

// PercentageForGas dispatches ratio to the curve of gas g. Unknown gases are
// an error rather than a silent 0 ppm.
func (cs Curves) PercentageForGas(ratio float64, g Gas) (float64, error) {
	c, err := cs.Curve(g)
	if err != nil {
		return 0, err
	}
	return Percentage(ratio, c)
}
