package domain

import (
	"fmt"
	"strings"
)

// Bounds applied to every stored capacity value.
const (
	MinCapacityValue = 0
	MaxCapacityValue = 99
)

// ValidateCapacity checks a proposed cell capacity. All problems are
// reported together in one CapacityInvalid validation error.
func ValidateCapacity(accommodation AccommodationType, specialist []SpecialistCellType, c Capacity) error {
	var problems []string
	for _, f := range []struct {
		name  string
		value int
	}{
		{"max capacity", c.MaxCapacity},
		{"working capacity", c.WorkingCapacity},
		{"certified normal accommodation", c.CertifiedNormalAccommodation},
	} {
		if f.value < MinCapacityValue || f.value > MaxCapacityValue {
			problems = append(problems, fmt.Sprintf("%s %d is outside [%d,%d]", f.name, f.value, MinCapacityValue, MaxCapacityValue))
		}
	}
	if c.WorkingCapacity > c.MaxCapacity {
		problems = append(problems, fmt.Sprintf("working capacity %d exceeds max capacity %d", c.WorkingCapacity, c.MaxCapacity))
	}
	if accommodation == AccommodationNormal && len(specialist) == 0 && c.MaxCapacity == 0 {
		problems = append(problems, "normal accommodation cell without a specialist type must have max capacity above 0")
	}
	if len(problems) == 0 {
		return nil
	}
	return Validation(ReasonCapacityInvalid, "invalid capacity: %s", strings.Join(problems, "; "))
}

// ValidateLocationCapacity validates the stored capacity of a cell. Other
// location types must not store capacity.
func ValidateLocationCapacity(l Location) error {
	if !l.LocationType.IsCell() {
		if l.Capacity != nil {
			return Validation(ReasonCapacityInvalid, "%s %s cannot store capacity", l.LocationType, l.Key())
		}
		return nil
	}
	if l.Capacity == nil {
		return Validation(ReasonCapacityInvalid, "cell %s has no capacity", l.Key())
	}
	return ValidateCapacity(l.AccommodationType, l.SpecialistCellTypes, *l.Capacity)
}
