package types

// Level is the canonical seniority of an offer. The empty value means unknown.
type Level string

const (
	LevelUnknown    Level = ""
	LevelInternship Level = "INTERNSHIP"
	LevelJunior     Level = "JUNIOR"
	LevelMid        Level = "MID"
	LevelSenior     Level = "SENIOR"
	LevelLead       Level = "LEAD"
)

// Rank orders levels from internship (1) to lead (5); unknown is 0.
func (l Level) Rank() int {
	switch l {
	case LevelInternship:
		return 1
	case LevelJunior:
		return 2
	case LevelMid:
		return 3
	case LevelSenior:
		return 4
	case LevelLead:
		return 5
	default:
		return 0
	}
}

// ContractType is one of the four Polish employment contract families.
type ContractType string

const (
	ContractB2B ContractType = "B2B"
	// ContractEmployment is a contract of employment (umowa o pracę).
	ContractEmployment ContractType = "UOP"
	// ContractMandate is a mandate contract (umowa zlecenie).
	ContractMandate ContractType = "UZ"
	// ContractSpecificTask is a contract for a specific task (umowa o dzieło).
	ContractSpecificTask ContractType = "UOD"
)

// ContractPreference is the order used to choose the main contract when several match.
var ContractPreference = []ContractType{ContractB2B, ContractEmployment, ContractMandate, ContractSpecificTask}

// SalaryPeriod is the unit a salary amount is quoted in.
type SalaryPeriod string

const (
	PeriodHour  SalaryPeriod = "HOUR"
	PeriodDay   SalaryPeriod = "DAY"
	PeriodWeek  SalaryPeriod = "WEEK"
	PeriodMonth SalaryPeriod = "MONTH"
	PeriodYear  SalaryPeriod = "YEAR"
)
