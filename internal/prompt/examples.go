package prompt

// example is a worked input/output pair shown to the model.
type example struct {
	title  string
	said   string
	output string
}

// examples demonstrate the exact output shape for each session mode. The
// outputs must stay valid responses; the package tests parse them.
var examples = []example{
	{
		title: "live conversation, past-tense slip",
		said:  "Yesterday I go to the beach with my family",
		output: `{
  "reply": "That sounds like a lovely day! What did you do at the beach?",
  "feedback": {
    "better_sentence": "Yesterday I went to the beach with my family.",
    "grammar": [
      {
        "issue": "past_tense",
        "original_text": "Yesterday I go to the beach",
        "explanation_language": "id",
        "explanation": "Gunakan bentuk lampau 'went' untuk kejadian kemarin.",
        "examples": ["I went to the beach.", "We visited my aunt last week."]
      }
    ],
    "vocabulary": [
      {
        "word": "seaside",
        "translation": "tepi laut",
        "example": "We had lunch at the seaside."
      }
    ],
    "pronunciation": []
  },
  "drills": [
    {
      "type": "repeat_sentence",
      "instruction": "Repeat this sentence:",
      "sentence": "Yesterday I went to the beach with my family."
    }
  ],
  "next_prompt": "What did you eat for lunch there?"
}`,
	},
	{
		title: "guided lesson, target grammar used correctly",
		said:  "I have worked as a nurse for three years",
		output: `{
  "reply": "Excellent! You used the present perfect correctly.",
  "feedback": {
    "better_sentence": null,
    "grammar": [],
    "vocabulary": [
      {
        "word": "experienced",
        "translation": "berpengalaman",
        "example": "I am an experienced nurse."
      }
    ],
    "pronunciation": []
  },
  "drills": [
    {
      "type": "short_answer",
      "instruction": "Answer with the present perfect:",
      "question": "How long have you lived in your city?"
    }
  ],
  "next_prompt": "Tell me about a project you have finished recently."
}`,
	},
	{
		title: "pronunciation coach, th sound",
		said:  "I tink it is a good idea",
		output: `{
  "reply": "Good try! Let's work on the 'th' in 'think'.",
  "feedback": {
    "better_sentence": "I think it is a good idea.",
    "grammar": [],
    "vocabulary": [],
    "pronunciation": [
      {
        "word": "think",
        "target_sound": "/θ/",
        "issue": "th_sound",
        "tip": "Put your tongue lightly between your teeth and blow air.",
        "severity": "medium"
      }
    ]
  },
  "drills": [
    {
      "type": "repeat_sentence",
      "instruction": "Say it slowly three times:",
      "sentence": "I think it is a good idea."
    }
  ],
  "next_prompt": "Now try: 'Thank you for thinking of me.'"
}`,
	},
}
