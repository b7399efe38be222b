package domain

// Topic is a supported quiz topic and its Open Trivia DB category.
type Topic struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CategoryID  int    `json:"-"`
}

var topics = []Topic{
	{ID: "general-knowledge", Title: "General Knowledge", Description: "Test your knowledge on a wide range of topics.", CategoryID: 9},
	{ID: "science-nature", Title: "Science & Nature", Description: "Explore the natural world and scientific principles.", CategoryID: 17},
	{ID: "english-language", Title: "English Language", Description: "Challenge your grammar, vocabulary, and literary skills.", CategoryID: 10},
	{ID: "arts-literature", Title: "Arts & Literature", Description: "Dive into the world of creative expression and stories.", CategoryID: 25},
}

// Topics returns the catalog in display order.
func Topics() []Topic {
	out := make([]Topic, len(topics))
	copy(out, topics)
	return out
}

// LookupTopic resolves a topic identifier.
func LookupTopic(id string) (Topic, bool) {
	for _, t := range topics {
		if t.ID == id {
			return t, true
		}
	}
	return Topic{}, false
}
