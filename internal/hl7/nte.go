package hl7

// NTESegment is a notes and comments segment.
type NTESegment struct {
	SetID           int      `json:"setId,omitempty"`
	SourceOfComment string   `json:"sourceOfComment,omitempty"`
	Comments        []string `json:"comments,omitempty"`
	CommentType     string   `json:"commentType,omitempty"`
}

const (
	nteSetID           = 0
	nteSourceOfComment = 1
	nteComment         = 2
	nteCommentType     = 3
	nteFieldCount      = nteCommentType + 1
)

func DecodeNTE(seg Segment, d Delimiters) NTESegment {
	r := newFieldReader(seg, d)
	return NTESegment{
		SetID:           r.setID(nteSetID),
		SourceOfComment: r.value(nteSourceOfComment),
		Comments:        r.repeats(nteComment),
		CommentType:     r.value(nteCommentType),
	}
}

func (n NTESegment) Encode(d Delimiters) Segment {
	w := newFieldWriter(nteFieldCount, d)
	w.setID(nteSetID, n.SetID)
	w.set(nteSourceOfComment, n.SourceOfComment)
	w.setRepeats(nteComment, n.Comments)
	w.set(nteCommentType, n.CommentType)
	return w.segment("NTE")
}
