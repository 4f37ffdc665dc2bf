package db

import "fmt"

// LoanStatus is the availability code of a BookInstance
type LoanStatus string

const (
	StatusMaintenance LoanStatus = "m"
	StatusOnLoan      LoanStatus = "o"
	StatusAvailable   LoanStatus = "a"
	StatusReserved    LoanStatus = "r"
)

// LoanStatuses lists every status in display order
var LoanStatuses = []LoanStatus{StatusMaintenance, StatusOnLoan, StatusAvailable, StatusReserved}

var loanStatusLabels = map[LoanStatus]string{
	StatusMaintenance: "Maintenance",
	StatusOnLoan:      "On loan",
	StatusAvailable:   "Available",
	StatusReserved:    "Reserved",
}

// Valid reports whether s is one of the known status codes
func (s LoanStatus) Valid() bool {
	_, ok := loanStatusLabels[s]
	return ok
}

// Label returns the human-readable name, or the raw code if unknown
func (s LoanStatus) Label() string {
	if label, ok := loanStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s LoanStatus) String() string {
	return s.Label()
}

// ParseLoanStatus accepts either a status code ("a") or its label ("Available")
func ParseLoanStatus(v string) (LoanStatus, error) {
	if s := LoanStatus(v); s.Valid() {
		return s, nil
	}
	for code, label := range loanStatusLabels {
		if label == v {
			return code, nil
		}
	}
	return "", fmt.Errorf("unknown loan status %q", v)
}
