// File: internal/classifier/phrases.go
package classifier

import "regexp"

// Phrase tables. All entries are lowercase and matched as substrings of the lowercased
// combined text unless noted otherwise.

var distractorPhrases = []string{
	"the shop sale just started",
	"i am very bored so here is a boring event",
	"let's see how big your knowledge is",
	"guess guess guess",
	"microsoft is trying to buy discord again",
	"skype is trying to beat discord again",
	"they've got airpods",
	"karen is starting a fight",
	"your immune system is under attack",
	"windows sucks lol",
	"lol imagine using skype",
	"jerk",
	"frick off karen",
	"disinfect",
	"trivia night",
	"let's see who's the smartest person here",
	"what an absolute gamer",
	"gamers are gaming in the game",
	"someone posted an idea on reddit",
	"try their game",
	"f in the chat i just died in minecraft",
	"press an f in the chat",
	"random event",
	"global event",
	"server event",
	"giveaway",
	"drop sale",
	"limited time",
	"guess the price",
	"what's the price",
	"price between",
	"health:",
	"hp:",
	"damage the",
	"defeat",
	"fight",
}

// distractorLabels are matched against the whole trimmed, lowercased button label.
var distractorLabels = map[string]bool{
	"f":                       true,
	"windows sucks lol":       true,
	"disinfect":               true,
	"jerk":                    true,
	"frick off karen":         true,
	"lol imagine using skype": true,
}

var pricePattern = regexp.MustCompile(`\$?\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)

var adventureKeywords = []string{
	"adventure", "spaceship", "space station", "planet", "galaxy", "alien",
	"what do you do", "you approach", "you encounter", "you came across", "choose items",
	"bring along", "recommended", "adventure summary", "adventure again in",
	"your adventure is over", "adventure completed", "adventure has ended", "turns out",
	"blob-like planet", "odd eyes", "kitchen",
}

var adventureLabelPatterns = []string{
	">", "→", "inspect", "try", "approach", "take", "grab", "talk", "start",
}

var nonAdventureLabelPatterns = []string{
	"basement", "bank", "couch", "identity theft", "gaslighting", "vandalism",
}

var startIndicators = []string{
	"choose items", "bring along", "recommended", "adventure options", "select adventure",
	"pick items",
}

var cooldownKeywords = []string{
	"adventure again in", "try again in", "cooldown", "wait", "minutes", "seconds", "hours",
}

var completionPhrases = []string{
	"adventure summary", "adventure again in", "your adventure is over",
	"adventure completed", "thanks for playing", "final results", "you lost all items",
	"summary",
}

var navigationNarration = []string{
	"nothing interesting happened", "you passed a star", "you found", "you discovered",
	"you encountered", "turns out", "it seems", "you feel", "blob-like planet", "odd eyes",
	"kitchen",
}

var interactionTriggers = []string{
	"choose items", "recommended", "bring along", "what do you do", "approach", "encounter",
}

// cooldownPattern converts a matched number into seconds.
type cooldownPattern struct {
	re         *regexp.Regexp
	multiplier int
}

// cooldownPatterns are tried in order; the first match wins.
var cooldownPatterns = []cooldownPattern{
	{regexp.MustCompile(`adventure again in\s+(\d+)\s*(?:minutes?|mins?|m\b)`), 60},
	{regexp.MustCompile(`next adventure in\s+(\d+)\s*minutes?`), 60},
	{regexp.MustCompile(`try again in\s+(\d+)\s*(?:minutes?|mins?)`), 60},
	{regexp.MustCompile(`wait\s+(\d+)\s*minutes?`), 60},
	{regexp.MustCompile(`cooldown\D{0,20}?(\d+)\s*minutes?`), 60},
	{regexp.MustCompile(`(?:adventure again in|try again in)\s+(\d+)\s*hours?`), 3600},
	{regexp.MustCompile(`(?:adventure again in|try again in)\s+(\d+)\s*seconds?`), 1},
}
