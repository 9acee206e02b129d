// Package persuasion produces the registration nudges appended to exam
// transitions and the loading messages shown while the bot is thinking.
package persuasion

import (
	"fmt"

	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/util"
)

// DefaultWebsiteURL is the review center site promoted in persuasion copy.
const DefaultWebsiteURL = "https://www.premierreviewcenter.com"

// ContextKey selects the situation a persuasion message is written for.
type ContextKey string

const (
	ExamFinished ContextKey = "exam_finished"
	ExamOptOut   ContextKey = "exam_opt_out"
	GeneralChat  ContextKey = "general_chat"
)

// Generator renders persuasion messages for one website.
type Generator struct {
	websiteURL string
}

// New returns a Generator linking to websiteURL, or DefaultWebsiteURL when empty.
func New(websiteURL string) *Generator {
	if websiteURL == "" {
		websiteURL = DefaultWebsiteURL
	}
	return &Generator{websiteURL: websiteURL}
}

// Messages returns the ordered persuasion messages for user in key. Registered
// users get one message, everyone else gets two. Unknown keys yield none.
func (g *Generator) Messages(user models.User, key ContextKey) []string {
	name := user.FirstName
	if name == "" {
		name = "there"
	}
	link := g.websiteURL

	if user.IsRegisteredWebsiteUser {
		switch key {
		case ExamFinished:
			return []string{fmt.Sprintf("Excellent work, %s! As a registered member you'll find more advanced practice exams and your personal analytics on our website: %s", name, link)}
		case ExamOptOut:
			return []string{fmt.Sprintf("No problem, %s. As a registered member you can keep reviewing at your own pace with the resources at %s", name, link)}
		case GeneralChat:
			return []string{fmt.Sprintf("Friendly reminder, %s: exclusive content and support are always waiting for you on our website: %s", name, link)}
		}
		return nil
	}

	switch key {
	case ExamFinished:
		return []string{
			fmt.Sprintf("Congratulations on finishing the mock exam, %s! 🎉 Unlock complete study materials, detailed performance analytics and many more practice questions when you register for free on our Review Center website: %s", name, link),
			"It's the best way to prepare for the bar exam! ✅",
		}
	case ExamOptOut:
		return []string{
			fmt.Sprintf("No problem, %s. Taking a break is perfectly fine! Just don't miss out on hundreds of practice questions, in-depth legal discussions and personalized study plans. Register for free on our Review Center website: %s", name, link),
			"You can continue your review anytime, at your own pace.",
		}
	case GeneralChat:
		return []string{
			fmt.Sprintf("Looking for more resources or detailed explanations, %s? Our Review Center website has an extensive library of legal materials and practice tools. Register for free today: %s", name, link),
			"It's a powerful way to level up your bar exam preparation! 💡",
		}
	}
	return nil
}

var loadingMessages = []string{
	"Loading your data... 🔄",
	"Preparing the system... ⚙️",
	"Fetching your results... 📥",
	"Processing, please wait... ⏳",
	"Syncing the latest info... 📡",
	"Retrieving records... 📂",
	"Verifying the data... 🔍",
	"Compiling your request... 🛠️",
	"Calculating results... 🧮",
	"Finishing the task... ✨",
}

// LoadingMessage returns a random "please wait" message.
func LoadingMessage() string {
	return util.Pick(loadingMessages)
}
