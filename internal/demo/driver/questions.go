package driver

import "math/rand"

// Question pool for the rental schema. Weights skew the mix toward the
// cheap aggregate questions so a long-running driver stays inexpensive.
var questionPool = []weightedQuestion{
	{Weight: 20, Text: "How many films are in the database?"},
	{Weight: 15, Text: "How many actors are there?"},
	{Weight: 12, Text: "What are the top 5 most rented films?"},
	{Weight: 10, Text: "Which customers have spent the most money?"},
	{Weight: 10, Text: "How many films are there in each category?"},
	{Weight: 8, Text: "Which actors appear in the most films?"},
	{Weight: 8, Text: "What is the average rental duration per category?"},
	{Weight: 6, Text: "Which store has the most rentals?"},
	{Weight: 6, Text: "What is the total payment amount per month?"},
	{Weight: 5, Text: "List the ten longest films with their ratings."},
}

type weightedQuestion struct {
	Weight int
	Text   string
}

type questionPicker struct {
	rnd   *rand.Rand
	pool  []weightedQuestion
	total int
}

func newQuestionPicker(seed int64) *questionPicker {
	total := 0
	for _, q := range questionPool {
		total += q.Weight
	}
	return &questionPicker{
		rnd:   rand.New(rand.NewSource(seed)),
		pool:  questionPool,
		total: total,
	}
}

func (p *questionPicker) Next() string {
	n := p.rnd.Intn(p.total)
	for _, q := range p.pool {
		n -= q.Weight
		if n < 0 {
			return q.Text
		}
	}
	return p.pool[len(p.pool)-1].Text
}

func (p *questionPicker) WantExplanation(ratio int) bool {
	if ratio <= 0 {
		return false
	}
	if ratio >= 100 {
		return true
	}
	return p.rnd.Intn(100) < ratio
}
