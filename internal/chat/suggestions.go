package chat

const Welcome = "Hi, I'm the virtual assistant. I'll help you understand and deal with unexpected situations with your vehicle."

// Suggestion is a canned question offered on an empty chat.
type Suggestion struct {
	Label string
	Text  string
}

var Suggestions = []Suggestion{
	{Label: "Brakes", Text: "The car is not stopping when I brake. What should I do?"},
	{Label: "Accelerator", Text: "The car is not responding to the accelerator. What should I do?"},
}
