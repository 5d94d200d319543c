package sentiment

// valence maps lexicon terms to polarity in [-1, 1]. The list follows the
// usual valence wordlists (AFINN-style), trimmed to terms that show up in
// product and employer discussions.
var valence = map[string]float64{
	// strongly positive
	"amazing": 0.8, "awesome": 0.8, "excellent": 0.9, "fantastic": 0.8,
	"outstanding": 0.9, "perfect": 0.9, "superb": 0.8, "wonderful": 0.8,
	"brilliant": 0.8, "exceptional": 0.8, "love": 0.7, "loved": 0.7,
	"best": 0.7, "incredible": 0.7,

	// positive
	"good": 0.5, "great": 0.6, "nice": 0.4, "happy": 0.5, "helpful": 0.5,
	"friendly": 0.5, "solid": 0.4, "reliable": 0.5, "recommend": 0.6,
	"recommended": 0.6, "impressed": 0.6, "impressive": 0.6, "enjoy": 0.5,
	"enjoyed": 0.5, "satisfied": 0.5, "positive": 0.4, "useful": 0.4,
	"fast": 0.3, "easy": 0.3, "smooth": 0.4, "fair": 0.3, "worth": 0.4,
	"pleasant": 0.5, "responsive": 0.4, "quality": 0.3, "improved": 0.4,
	"like": 0.3, "liked": 0.3, "fine": 0.2, "decent": 0.3, "okay": 0.1,

	// negative
	"bad": -0.5, "poor": -0.5, "slow": -0.3, "buggy": -0.5, "broken": -0.6,
	"disappointed": -0.6, "disappointing": -0.6, "annoying": -0.5,
	"frustrating": -0.6, "frustrated": -0.6, "unreliable": -0.5,
	"expensive": -0.3, "overpriced": -0.5, "mediocre": -0.4, "meh": -0.3,
	"problem": -0.3, "problems": -0.3, "issue": -0.3, "issues": -0.3,
	"difficult": -0.3, "confusing": -0.4, "negative": -0.4, "waste": -0.6,
	"wasted": -0.6, "lacking": -0.4, "unhappy": -0.5, "dislike": -0.4,
	"regret": -0.5, "refund": -0.4, "complaint": -0.4, "complaints": -0.4,

	// strongly negative
	"terrible": -0.8, "horrible": -0.8, "awful": -0.8, "worst": -0.9,
	"scam": -0.9, "fraud": -0.9, "hate": -0.7, "hated": -0.7,
	"useless": -0.7, "garbage": -0.8, "trash": -0.7, "avoid": -0.6,
	"nightmare": -0.8, "disaster": -0.8, "unacceptable": -0.7,
	"toxic": -0.7, "dishonest": -0.7, "misleading": -0.6,
}

// negators flip the polarity of the following lexicon term.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true,
	"hardly": true, "barely": true, "isnt": true, "isn't": true,
	"wasnt": true, "wasn't": true, "dont": true, "don't": true,
	"didnt": true, "didn't": true, "cant": true, "can't": true,
	"wont": true, "won't": true, "without": true,
}

// intensity scales the following lexicon term.
var intensity = map[string]float64{
	"very": 1.3, "really": 1.3, "extremely": 1.5, "incredibly": 1.5,
	"absolutely": 1.4, "totally": 1.3, "so": 1.2, "quite": 1.1,
	"pretty": 1.1, "somewhat": 0.7, "slightly": 0.6, "a bit": 0.7,
	"kinda": 0.8, "rather": 1.1, "super": 1.4, "too": 1.2,
}
