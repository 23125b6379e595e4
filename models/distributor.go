package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Distributor identifies the partner whose export layout a report uses.
type Distributor string

const (
	DistributorKontor  Distributor = "kontor"
	DistributorBelieve Distributor = "believe"
)

var distributors = []Distributor{DistributorKontor, DistributorBelieve}

func (d Distributor) IsValid() bool {
	for _, v := range distributors {
		if d == v {
			return true
		}
	}
	return false
}

func (d Distributor) String() string {
	return string(d)
}

// ParseDistributor accepts the distributor tag in any letter case.
func ParseDistributor(s string) (Distributor, error) {
	d := Distributor(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown distributor %q", s)
	}
	return d, nil
}

func (d Distributor) Value() (driver.Value, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("invalid distributor %q", string(d))
	}
	return string(d), nil
}

func (d *Distributor) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*d = ""
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Distributor", value)
	}
	parsed, err := ParseDistributor(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
