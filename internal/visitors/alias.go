package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Bold", "Lively",
	"Bright", "Cheerful", "Creative", "Elegant", "Friendly", "Calm", "Daring", "Nimble", "Radiant", "Serene",
	"Jolly", "Witty", "Keen", "Mellow", "Quiet", "Sunny", "Zesty", "Plucky", "Dapper", "Merry",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Penguin", "Parrot", "Giraffe", "Raccoon", "Meerkat", "Llama", "Hedgehog", "Tiger", "Wolf",
	"Falcon", "Dolphin", "Whale", "Seahorse", "Turtle", "Octopus", "Heron", "Lark", "Finch", "Crane",
}

// VisitorAlias maps a visitor id to a stable "Adjective Animal" display name
// so reports can tell visitors apart without showing their ids. An empty id
// has no alias.
func VisitorAlias(visitorID string) string {
	if visitorID == "" {
		return ""
	}

	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	animal := aliasAnimals[(index/len(aliasAdjectives))%len(aliasAnimals)]
	return adj + " " + animal
}
