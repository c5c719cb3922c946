package chatbot

// Entry is one canned answer. Keywords may be single words or phrases;
// phrases only match when the whole phrase appears in the question.
type Entry struct {
	Topic    string   `json:"topic"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"-"`
}

// DefaultFAQ is the built-in question set served at /api/v1/faq.
var DefaultFAQ = []Entry{
	{
		Topic:    "eligibility",
		Question: "Who can register as an organ donor?",
		Answer: "Adults in good general health can pledge organs. A doctor reviews every donor profile " +
			"and uploaded medical reports before the donor is considered for a match.",
		Keywords: []string{"eligible", "eligibility", "who can", "register", "age", "pledge", "qualify"},
	},
	{
		Topic:    "blood-groups",
		Question: "Why does my blood group matter?",
		Answer: "Proposals are only made between a donor and a recipient with the same blood group. " +
			"Keep your blood group up to date on your profile so you are not missed.",
		Keywords: []string{"blood", "group", "type", "compatible", "compatibility", "rh", "positive", "negative"},
	},
	{
		Topic:    "matching",
		Question: "How are donors matched with recipients?",
		Answer: "The matcher pairs donors and recipients whose blood group and organ agree and scores each pair. " +
			"Every proposal starts as Pending until a doctor approves or rejects it.",
		Keywords: []string{"match", "matching", "matched", "score", "proposal", "pending", "pair", "run match"},
	},
	{
		Topic:    "documents",
		Question: "Which documents do I need to upload?",
		Answer: "Upload an ID proof, a recent blood test and any medical reports. Donors also upload a signed " +
			"consent form. A doctor reviews each document and you are notified of the outcome.",
		Keywords: []string{"document", "documents", "upload", "report", "consent", "id proof", "blood test", "file"},
	},
	{
		Topic:    "process",
		Question: "What happens after a match is approved?",
		Answer: "The care team schedules evaluation and surgery. You can follow the hospital, surgeon and " +
			"schedule on the match tracking timeline and talk to the team in the match conversation.",
		Keywords: []string{"approved", "after", "next", "surgery", "transplant", "tracking", "timeline", "hospital", "schedule"},
	},
	{
		Topic:    "verification",
		Question: "How do I get my profile verified?",
		Answer: "A doctor verifies your profile once your details and documents have been reviewed. " +
			"Verified status is shown on your dashboard.",
		Keywords: []string{"verify", "verified", "verification", "profile", "approval"},
	},
	{
		Topic:    "privacy",
		Question: "Who can see my information?",
		Answer: "Only you, doctors and administrators can see your full record. The other party of a match " +
			"sees your name and the organ and blood group of the proposal.",
		Keywords: []string{"privacy", "private", "see", "share", "data", "information", "confidential"},
	},
	{
		Topic:    "contact",
		Question: "How do I contact the care team?",
		Answer: "Open the conversation for your match to message the doctor, or contact the hospital listed " +
			"on your match tracking page.",
		Keywords: []string{"contact", "help", "support", "call", "phone", "email", "talk", "doctor"},
	},
}
