package radhaz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/NotCoffee418/radman-monitor/pkg/rfunits"
	"github.com/sirupsen/logrus"
)

const (
	// Resolution of the generated limit tables.
	tableStepMhz = 0.01

	// Queries further than this from the nearest table entry get a warning.
	farMatchToleranceMhz = 1.0

	// Impedance of free space, for the plane-wave bands.
	freeSpaceImpedanceOhm = 377.0
)

// Probes shaped against the controlled-environment limits report this
// in their standard name field.
const occupationalPattern = "FCC 96-326 / Occupational"

// FCC96326 implements the FCC 96-326 RADHAZ standard. The standard's
// 'controlled' limits are referred to as Occupational here, and the
// 'uncontrolled' limits as General Public.
type FCC96326 struct {
	name  string
	table []LimitPoint
}

// NewFCC96326 builds the limit table once at construction. The general
// public table is intentionally empty: lookups against it return
// ErrUnimplemented instead of a wrong answer.
func NewFCC96326(occupational bool) *FCC96326 {
	if occupational {
		return &FCC96326{
			name:  "FCC 96-326 Controlled Environments (Occupational)",
			table: occupationalTable(),
		}
	}
	return &FCC96326{
		name: "FCC 96-326 Uncontrolled Environments (General Public)",
	}
}

func (s *FCC96326) Name() string {
	return s.name
}

// occupationalTable generates the E and H-field limits for controlled
// environments at 0.01 MHz resolution, 0.003 MHz through 3000 MHz.
func occupationalTable() []LimitPoint {
	var table []LimitPoint

	addBand := func(loMhz, hiMhz float64, efield, hfield func(f float64) float64) {
		for i := 0; ; i++ {
			f := loMhz + float64(i)*tableStepMhz
			if f >= hiMhz {
				break
			}
			table = append(table, LimitPoint{
				FrequencyMhz: f,
				EFieldLimit:  efield(f),
				HFieldLimit:  hfield(f),
			})
		}
	}
	constant := func(v float64) func(float64) float64 {
		return func(float64) float64 { return v }
	}

	// 0.003 - 0.1 MHz: E = 614 V/m, H = 163 A/m
	addBand(0.003, 0.1, constant(614), constant(163))

	// 0.1 - 3.0 MHz: E = 614 V/m, H = 16.3/f A/m
	addBand(0.1, 3.0, constant(614), func(f float64) float64 { return 16.3 / f })

	// 3.0 - 30 MHz: E = 1842/f V/m, H = 16.3/f A/m
	addBand(3.0, 30.0,
		func(f float64) float64 { return 1842.0 / f },
		func(f float64) float64 { return 16.3 / f })

	// 30 - 100 MHz: E = 61.4 V/m, H = 16.3/f A/m
	addBand(30.0, 100.0, constant(61.4), func(f float64) float64 { return 16.3 / f })

	// 100 - 300 MHz: E = 61.4 V/m, H = 0.163 A/m
	addBand(100.0, 300.0, constant(61.4), constant(0.163))

	// The shared 300 MHz point keeps the 100-300 MHz band limits.
	table = append(table, LimitPoint{FrequencyMhz: 300.0, EFieldLimit: 61.4, HFieldLimit: 0.163})

	// 300 - 3000 MHz: S = f/300 W/m^2, E = sqrt(S*377), H = sqrt(S/377)
	// (plane-wave approximation)
	addBand(300.0+tableStepMhz, 3000.0,
		func(f float64) float64 { return math.Sqrt(f / 300.0 * freeSpaceImpedanceOhm) },
		func(f float64) float64 { return math.Sqrt(f / 300.0 / freeSpaceImpedanceOhm) })

	return table
}

// nearestIndex finds the table entry closest in frequency. Equidistant
// neighbours resolve to the lower entry.
func (s *FCC96326) nearestIndex(frequencyMhz float64) int {
	idx := sort.Search(len(s.table), func(i int) bool {
		return s.table[i].FrequencyMhz >= frequencyMhz
	})
	if idx == 0 {
		return 0
	}
	if idx == len(s.table) {
		return len(s.table) - 1
	}
	if s.table[idx].FrequencyMhz-frequencyMhz < frequencyMhz-s.table[idx-1].FrequencyMhz {
		return idx
	}
	return idx - 1
}

func (s *FCC96326) lookup(frequencyMhz float64) (LimitPoint, error) {
	if len(s.table) == 0 {
		return LimitPoint{}, fmt.Errorf("%w: %s has no limit table", ErrUnimplemented, s.name)
	}

	point := s.table[s.nearestIndex(frequencyMhz)]
	if math.Abs(point.FrequencyMhz-frequencyMhz) > farMatchToleranceMhz {
		logrus.Warnf("Frequency %.3f MHz is far from nearest match in table (%.2f MHz)",
			frequencyMhz, point.FrequencyMhz)
	}
	return point, nil
}

func (s *FCC96326) EFieldLimit(frequencyMhz float64) (float64, error) {
	point, err := s.lookup(frequencyMhz)
	if err != nil {
		return 0, err
	}
	return point.EFieldLimit, nil
}

func (s *FCC96326) HFieldLimit(frequencyMhz float64) (float64, error) {
	point, err := s.lookup(frequencyMhz)
	if err != nil {
		return 0, err
	}
	return point.HFieldLimit, nil
}

// PercentageToEField converts a percentage-of-limit reading to V/m at the
// given frequency. A zero reading converts to exactly zero, and 100%
// returns the table limit exactly.
func (s *FCC96326) PercentageToEField(percentage, frequencyMhz float64) (float64, error) {
	if percentage == 0 {
		return 0, nil
	}
	limit, err := s.EFieldLimit(frequencyMhz)
	if err != nil {
		return 0, err
	}
	return rfunits.DbToFieldRatio(rfunits.PercentToDb(percentage)) * limit, nil
}

// PercentageToHField converts a percentage-of-limit reading to A/m.
func (s *FCC96326) PercentageToHField(percentage, frequencyMhz float64) (float64, error) {
	if percentage == 0 {
		return 0, nil
	}
	limit, err := s.HFieldLimit(frequencyMhz)
	if err != nil {
		return 0, err
	}
	return rfunits.DbToFieldRatio(rfunits.PercentToDb(percentage)) * limit, nil
}

// EFieldToPercentage is declared for symmetry but not implemented.
func (s *FCC96326) EFieldToPercentage(field, frequencyMhz float64) (float64, error) {
	return 0, fmt.Errorf("%w: e-field to percentage conversion", ErrUnimplemented)
}

// HFieldToPercentage is declared for symmetry but not implemented.
func (s *FCC96326) HFieldToPercentage(field, frequencyMhz float64) (float64, error) {
	return 0, fmt.Errorf("%w: h-field to percentage conversion", ErrUnimplemented)
}

// ChooseStandard resolves a probe-reported standard name to a Standard.
// Unrecognized names resolve to nil and consumers fall back to reporting
// raw percentages.
func ChooseStandard(standardName string) Standard {
	if strings.Contains(standardName, occupationalPattern) {
		return NewFCC96326(true)
	}
	return nil
}
