package index

// Posting records how often a term occurs in one document. Doc is the
// document's ordinal in corpus order.
type Posting struct {
	Doc       int
	Frequency int
}

// PostingList is ordered by ascending Doc.
type PostingList []Posting
