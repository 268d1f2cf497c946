package domain

import "testing"

func TestValidateCapacity(t *testing.T) {
	cases := []struct {
		name       string
		accom      AccommodationType
		specialist []SpecialistCellType
		capacity   Capacity
		wantErr    bool
	}{
		{"valid", AccommodationNormal, nil, Capacity{2, 2, 2}, false},
		{"working above max", AccommodationNormal, nil, Capacity{MaxCapacity: 3, WorkingCapacity: 5}, true},
		{"above range", AccommodationNormal, nil, Capacity{MaxCapacity: 100, WorkingCapacity: 1}, true},
		{"negative", AccommodationNormal, nil, Capacity{MaxCapacity: 1, WorkingCapacity: 1, CertifiedNormalAccommodation: -1}, true},
		{"zero max normal", AccommodationNormal, nil, Capacity{}, true},
		{"zero max specialist", AccommodationNormal, []SpecialistCellType{SpecialistDry}, Capacity{}, false},
		{"zero max care", AccommodationCareAndSeparation, nil, Capacity{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCapacity(tc.accom, tc.specialist, tc.capacity)
			if tc.wantErr {
				if !HasReason(err, ReasonCapacityInvalid) || !HasCode(err, CodeValidation) {
					t.Fatalf("expected capacity validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateLocationCapacity(t *testing.T) {
	wing := node("A", "MDI", "A", LocationTypeWing, "")
	if err := ValidateLocationCapacity(wing); err != nil {
		t.Fatalf("wing without capacity should pass: %v", err)
	}
	wing.Capacity = &Capacity{MaxCapacity: 1}
	if err := ValidateLocationCapacity(wing); err == nil {
		t.Fatalf("expected stored capacity on wing to fail")
	}
	c := cell("c1", "", 1, 1, 1)
	c.Capacity = nil
	if err := ValidateLocationCapacity(c); err == nil {
		t.Fatalf("expected cell without capacity to fail")
	}
}
