package vocab

// referenceSigns is the built-in list of common ISL signs used when no
// trained vocabulary can be located. Serving from this list means the model
// weights are almost certainly random too; it exists so the pipeline stays
// exercisable end to end before a first training run.
var referenceSigns = []string{
	"hello", "thank you", "please", "yes", "no", "help", "sorry",
	"good", "bad", "eat", "drink", "water", "food", "home", "work",
	"family", "friend", "love", "happy", "sad", "angry", "tired",
	"morning", "afternoon", "evening", "night", "today", "tomorrow",
	"yesterday", "now", "later", "here", "there", "what", "when",
	"where", "who", "why", "how", "can", "cannot", "want", "need",
	"like", "dislike", "understand", "not understand", "repeat",
	"slow", "fast", "big", "small", "hot", "cold", "new", "old",
	"good morning", "good night", "how are you", "fine", "okay",
	"excuse me", "welcome", "goodbye", "see you", "take care",
	"mother", "father", "brother", "sister", "child", "baby",
	"man", "woman", "boy", "girl", "doctor", "teacher", "student",
	"hospital", "school", "shop", "restaurant", "bathroom",
	"one", "two", "three", "four", "five", "six", "seven", "eight",
	"nine", "ten", "hundred", "thousand", "money", "expensive", "cheap",
}

// builtinCap bounds how many reference signs a builtin vocabulary may carry.
const builtinCap = 100

// Builtin returns the first n reference signs as a vocabulary. n is capped
// at 100 and at the reference list length; n <= 0 means the whole list.
func Builtin(n int) *Vocabulary {
	if n <= 0 || n > len(referenceSigns) {
		n = len(referenceSigns)
	}
	if n > builtinCap {
		n = builtinCap
	}
	v, err := New(referenceSigns[:n])
	if err != nil {
		// The reference list is a compile-time constant with no
		// duplicates; reaching here is a programming error.
		panic(err)
	}
	return v
}
