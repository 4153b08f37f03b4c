package hl7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segmentOf(t *testing.T, raw, segType string) (Segment, Delimiters) {
	t.Helper()
	msg := ParseMessage([]byte(raw))
	seg, ok := msg.Segment(segType)
	require.True(t, ok, "segment %s", segType)
	return seg, msg.Delimiters
}

func TestDecodePIDRepeatingNames(t *testing.T) {
	seg, d := segmentOf(t, sampleORU, "PID")
	pid := DecodePID(seg, d)

	assert.Equal(t, 1, pid.SetID)
	require.Len(t, pid.Names, 2)
	assert.Equal(t, PersonName{Family: "Doe", Given: "John", Suffix: "Jr", Prefix: "Dr"}, pid.Names[0])
	assert.Equal(t, PersonName{Family: "Smith", Given: "Jane"}, pid.Names[1])

	require.Len(t, pid.Identifiers, 1)
	assert.Equal(t, PatientIdentifier{ID: "12345", AssigningAuthority: "HOSP", IdentifierType: "MR"}, pid.Identifiers[0])
	assert.Equal(t, "19800101", pid.DateOfBirth)
	assert.Equal(t, "M", pid.Sex)
	assert.Empty(t, pid.Addresses)
	assert.Empty(t, pid.SSN)
}

func TestPIDEncodeRoundTrip(t *testing.T) {
	pid := PIDSegment{
		SetID:       1,
		Identifiers: []PatientIdentifier{{ID: "P1", AssigningAuthority: "HOSP", IdentifierType: "MR"}, {ID: "T99"}},
		Names:       []PersonName{{Family: "Yılmaz", Given: "Ayşe", Middle: "N"}},
		DateOfBirth: "19700101",
		Sex:         "F",
		Addresses:   []Address{{Street: "Atatürk Cd. 1", City: "Ankara", Country: "TR"}},
		PhoneHome:   "5551234",
		SSN:         "123",
	}

	seg := pid.Encode(DefaultDelimiters)
	assert.Equal(t, "PID", seg.Type)
	assert.Len(t, seg.Fields, 19)
	assert.Equal(t, "P1^^^HOSP^MR~T99", seg.Field(3))
	assert.Equal(t, "Yılmaz^Ayşe^N", seg.Field(5))
	assert.Equal(t, "Atatürk Cd. 1^^Ankara^^^TR", seg.Field(11))

	assert.Equal(t, pid, DecodePID(seg, DefaultDelimiters))
}

func TestDecodeOBR(t *testing.T) {
	raw := "MSH|^~\\&|A|B|C|D|||ORM^O01|1|P|2.5\r" +
		"OBR|1|ORD1|FIL1|CBC^Complete Blood Count^L|S|20240101080000|20240101081500|||||||||DR1^House^Greg|||||||||HM|F"
	seg, d := segmentOf(t, raw, "OBR")
	obr := DecodeOBR(seg, d)

	assert.Equal(t, 1, obr.SetID)
	assert.Equal(t, "ORD1", obr.PlacerOrderNumber)
	assert.Equal(t, "FIL1", obr.FillerOrderNumber)
	assert.Equal(t, &CodedElement{Identifier: "CBC", Text: "Complete Blood Count", CodingSystem: "L"}, obr.UniversalServiceID)
	assert.Equal(t, "S", obr.Priority)
	assert.Equal(t, "20240101080000", obr.RequestedDateTime)
	assert.Equal(t, "20240101081500", obr.ObservationDateTime)
	assert.Equal(t, &Provider{ID: "DR1", FamilyName: "House", GivenName: "Greg"}, obr.OrderingProvider)
	assert.Equal(t, "HM", obr.DiagnosticServSectID)
	assert.Equal(t, "F", obr.ResultStatus)

	assert.Equal(t, obr, DecodeOBR(obr.Encode(d), d))
}

func TestDecodeOBX(t *testing.T) {
	seg, d := segmentOf(t, sampleORU, "OBX")
	obx := DecodeOBX(seg, d)

	assert.Equal(t, 1, obx.SetID)
	assert.Equal(t, "NM", obx.ValueType)
	assert.Equal(t, "GLU", obx.ObservationIdentifier.Identifier)
	assert.Equal(t, []string{"105"}, obx.ObservationValues)
	assert.Equal(t, "105", obx.Value())
	assert.Equal(t, "mg/dL", obx.Units)
	assert.Equal(t, "70-100", obx.ReferenceRange)
	assert.Equal(t, []string{"H"}, obx.AbnormalFlags)
	assert.Equal(t, ResultStatusFinal, obx.ObservationResultStatus)
}

func TestOBXEncodeDefaultsToFinal(t *testing.T) {
	seg := OBXSegment{SetID: 2, ValueType: "ST", ObservationValues: []string{"pos", "neg"}}.Encode(DefaultDelimiters)

	assert.Equal(t, "pos~neg", seg.Field(5))
	assert.Equal(t, ResultStatusFinal, seg.Field(11))
	assert.Empty(t, seg.Field(3))
}

func TestDecodeOBXMissingFields(t *testing.T) {
	obx := DecodeOBX(Segment{Type: "OBX", Fields: []string{"x"}}, DefaultDelimiters)

	assert.Equal(t, 0, obx.SetID)
	assert.Nil(t, obx.ObservationIdentifier)
	assert.Nil(t, obx.ObservationValues)
	assert.Equal(t, "", obx.Value())
}

func TestORC(t *testing.T) {
	seg, d := segmentOf(t, sampleORU, "ORC")
	orc := DecodeORC(seg, d)

	assert.Equal(t, "RE", orc.OrderControl)
	assert.Equal(t, "ORD001", orc.PlacerOrderNumber)
	assert.Equal(t, "FIL001", orc.FillerOrderNumber)
	assert.Nil(t, orc.OrderingProvider)

	encoded, err := orc.Encode(d)
	require.NoError(t, err)
	assert.Equal(t, orc, DecodeORC(encoded, d))

	_, err = ORCSegment{PlacerOrderNumber: "X"}.Encode(d)
	assert.ErrorIs(t, err, ErrMissingOrderControl)
}

func TestNTE(t *testing.T) {
	seg, d := segmentOf(t, sampleORU, "NTE")
	nte := DecodeNTE(seg, d)

	assert.Equal(t, NTESegment{SetID: 1, SourceOfComment: "L", Comments: []string{"Fasting sample"}}, nte)
	assert.Equal(t, nte, DecodeNTE(nte.Encode(d), d))
}

func TestResultMessage(t *testing.T) {
	rm := DecodeResultMessage(ParseMessage([]byte(sampleORU)))

	assert.Equal(t, TypeORU, rm.MessageType)
	assert.Equal(t, "MSG00001", rm.MessageControlID)
	require.NotNil(t, rm.Patient)
	require.NotNil(t, rm.Order)
	require.NotNil(t, rm.Request)
	require.Len(t, rm.Observations, 1)
	require.Len(t, rm.Notes, 1)

	msg, err := rm.Message(DefaultDelimiters)
	require.NoError(t, err)

	types := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		types = append(types, seg.Type)
	}
	assert.Equal(t, []string{"PID", "ORC", "OBR", "OBX", "NTE"}, types)

	again := DecodeResultMessage(ParseMessage([]byte(GenerateMessage(msg))))
	assert.Equal(t, rm, again)
}

func TestResultMessageRejectsORCWithoutControl(t *testing.T) {
	rm := ResultMessage{MessageType: TypeORM, Order: &ORCSegment{PlacerOrderNumber: "X"}}
	_, err := rm.Message(DefaultDelimiters)
	assert.ErrorIs(t, err, ErrMissingOrderControl)
}
