package triage

import "dispatch_triage/incident"

// Unit names suggested for dispatch.
const (
	UnitPolicePatrol      = "Police Patrol"
	UnitDetective         = "Detective"
	UnitSWAT              = "SWAT Team"
	UnitCrimeScene        = "Crime Scene Unit"
	UnitFireEngine        = "Fire Engine"
	UnitAmbulance         = "Ambulance"
	UnitFireChief         = "Fire Chief"
	UnitHazmat            = "Hazmat Unit"
	UnitEMS               = "EMS"
	UnitMedicalSupervisor = "Medical Supervisor"
	UnitTraumaTeam        = "Trauma Team"
)

// Route suggests response units. Units are appended in a fixed order so the
// result can be compared for exact equality.
func Route(category incident.Category, priority incident.Priority, severity int) []string {
	var units []string
	switch category {
	case incident.Fire:
		units = append(units, UnitFireEngine, UnitAmbulance)
		if priority == incident.High {
			units = append(units, UnitFireChief)
			if severity == 1 {
				units = append(units, UnitHazmat)
			}
		}
	case incident.Medical:
		units = append(units, UnitEMS, UnitAmbulance)
		if priority == incident.High {
			units = append(units, UnitMedicalSupervisor)
			if severity == 1 {
				units = append(units, UnitTraumaTeam)
			}
		}
	default:
		units = append(units, UnitPolicePatrol)
		if priority == incident.High {
			units = append(units, UnitDetective)
			if severity == 1 {
				units = append(units, UnitSWAT)
			}
		}
		if severity <= 2 {
			units = append(units, UnitCrimeScene)
		}
	}
	return units
}
