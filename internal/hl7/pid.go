package hl7

// PatientIdentifier is one repetition of PID-3.
type PatientIdentifier struct {
	ID                 string `json:"id,omitempty"`
	AssigningAuthority string `json:"assigningAuthority,omitempty"`
	IdentifierType     string `json:"identifierType,omitempty"`
}

// PersonName is one repetition of PID-5 (XPN).
type PersonName struct {
	Family string `json:"family,omitempty"`
	Given  string `json:"given,omitempty"`
	Middle string `json:"middle,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// Address is one repetition of PID-11 (XAD).
type Address struct {
	Street  string `json:"street,omitempty"`
	Other   string `json:"other,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// PIDSegment is the typed view of a PID segment.
type PIDSegment struct {
	SetID         int                 `json:"setId,omitempty"`
	PatientID     string              `json:"patientId,omitempty"`
	Identifiers   []PatientIdentifier `json:"identifiers,omitempty"`
	Names         []PersonName        `json:"names,omitempty"`
	DateOfBirth   string              `json:"dateOfBirth,omitempty"`
	Sex           string              `json:"sex,omitempty"`
	Addresses     []Address           `json:"addresses,omitempty"`
	PhoneHome     string              `json:"phoneHome,omitempty"`
	PhoneBusiness string              `json:"phoneBusiness,omitempty"`
	MaritalStatus string              `json:"maritalStatus,omitempty"`
	SSN           string              `json:"ssn,omitempty"`
}

const (
	pidSetID         = 0
	pidPatientID     = 1
	pidIdentifiers   = 2
	pidNames         = 4
	pidDateOfBirth   = 6
	pidSex           = 7
	pidAddresses     = 10
	pidPhoneHome     = 12
	pidPhoneBusiness = 13
	pidMaritalStatus = 15
	pidSSN           = 18
	pidFieldCount    = pidSSN + 1
)

// DecodePID projects seg onto a PIDSegment.
func DecodePID(seg Segment, d Delimiters) PIDSegment {
	r := newFieldReader(seg, d)
	pid := PIDSegment{
		SetID:         r.setID(pidSetID),
		PatientID:     r.value(pidPatientID),
		DateOfBirth:   r.value(pidDateOfBirth),
		Sex:           r.value(pidSex),
		PhoneHome:     r.value(pidPhoneHome),
		PhoneBusiness: r.value(pidPhoneBusiness),
		MaritalStatus: r.value(pidMaritalStatus),
		SSN:           r.value(pidSSN),
	}

	for _, rep := range r.repeats(pidIdentifiers) {
		c := r.splitComponents(rep)
		pid.Identifiers = append(pid.Identifiers, PatientIdentifier{
			ID:                 at(c, 0),
			AssigningAuthority: at(c, 3),
			IdentifierType:     at(c, 4),
		})
	}

	for _, rep := range r.repeats(pidNames) {
		c := r.splitComponents(rep)
		pid.Names = append(pid.Names, PersonName{
			Family: at(c, 0),
			Given:  at(c, 1),
			Middle: at(c, 2),
			Suffix: at(c, 3),
			Prefix: at(c, 4),
		})
	}

	for _, rep := range r.repeats(pidAddresses) {
		c := r.splitComponents(rep)
		pid.Addresses = append(pid.Addresses, Address{
			Street:  at(c, 0),
			Other:   at(c, 1),
			City:    at(c, 2),
			State:   at(c, 3),
			Zip:     at(c, 4),
			Country: at(c, 5),
		})
	}

	return pid
}

// Encode renders the view back into a PID segment.
func (p PIDSegment) Encode(d Delimiters) Segment {
	w := newFieldWriter(pidFieldCount, d)
	w.setID(pidSetID, p.SetID)
	w.set(pidPatientID, p.PatientID)
	w.set(pidDateOfBirth, p.DateOfBirth)
	w.set(pidSex, p.Sex)
	w.set(pidPhoneHome, p.PhoneHome)
	w.set(pidPhoneBusiness, p.PhoneBusiness)
	w.set(pidMaritalStatus, p.MaritalStatus)
	w.set(pidSSN, p.SSN)

	ids := make([]string, 0, len(p.Identifiers))
	for _, id := range p.Identifiers {
		ids = append(ids, w.joinComponents(id.ID, "", "", id.AssigningAuthority, id.IdentifierType))
	}
	w.setRepeats(pidIdentifiers, ids)

	names := make([]string, 0, len(p.Names))
	for _, n := range p.Names {
		names = append(names, w.joinComponents(n.Family, n.Given, n.Middle, n.Suffix, n.Prefix))
	}
	w.setRepeats(pidNames, names)

	addrs := make([]string, 0, len(p.Addresses))
	for _, a := range p.Addresses {
		addrs = append(addrs, w.joinComponents(a.Street, a.Other, a.City, a.State, a.Zip, a.Country))
	}
	w.setRepeats(pidAddresses, addrs)

	return w.segment("PID")
}
