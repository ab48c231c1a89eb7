// Package content holds the quiz question sets bundled with the service. They seed the
// quizzes table on migrate and back the in-memory quiz loader when no database is configured.
package content

import "cybershield-progress/internal/domain"

// Quizzes returns the bundled quizzes keyed by threat id.
func Quizzes() map[string]domain.Quiz {
	out := make(map[string]domain.Quiz, len(bundled))
	for _, q := range bundled {
		out[q.ThreatID] = q
	}
	return out
}

var bundled = []domain.Quiz{
	{
		ID:       "quiz-phishing",
		ThreatID: "phishing",
		Questions: []domain.Question{
			q("An email from your bank asks you to confirm your password through a link. What should you do?",
				0, "Go to the bank's site directly and check from there", "Click the link and confirm quickly", "Reply with your password", "Forward it to friends"),
			q("Which sender address is most likely spoofed?",
				2, "alerts@yourbank.com", "it-support@yourcompany.com", "security@yourbank-verify-login.net", "noreply@github.com"),
			q("What is spear phishing?",
				1, "Phishing sent to millions of random users", "A phishing attack tailored to a specific person or group", "Phishing over SMS", "A type of firewall"),
			q("Hovering over a link shows a URL different from the text. This is a sign of:",
				0, "A possible phishing attempt", "A slow network", "A browser update", "Normal email formatting"),
			q("Which is a common phishing tactic?",
				3, "Plain subject lines", "Messages you were expecting", "No links at all", "Creating a false sense of urgency"),
			q("What is smishing?",
				2, "Phishing through social media likes", "A malware strain", "Phishing via SMS text messages", "Encrypted email"),
			q("You entered your credentials on a fake page. What is the first step?",
				1, "Wait and see", "Change the password and enable multi-factor authentication", "Delete the email", "Restart your computer"),
			q("Which attachment type deserves the most caution from an unknown sender?",
				0, ".exe or macro-enabled documents", ".txt files", "Inline images you expected", "Calendar invites from coworkers"),
			q("What does multi-factor authentication do against phishing?",
				1, "Blocks all emails", "Makes a stolen password alone insufficient to log in", "Encrypts your inbox", "Removes spam"),
			q("Whaling targets:",
				3, "Marine biologists", "Random home users", "Only IT staff", "Senior executives and other high-value individuals"),
		},
	},
	{
		ID:       "quiz-malware",
		ThreatID: "malware",
		Questions: []domain.Question{
			q("Which malware encrypts files and demands payment?",
				1, "Adware", "Ransomware", "Spyware", "A worm"),
			q("What is the best protection against losing data to ransomware?",
				2, "Paying quickly", "Turning off the monitor", "Regular offline backups", "Using a longer username"),
			q("A trojan is malware that:",
				0, "Disguises itself as legitimate software", "Spreads only through Bluetooth", "Only affects servers", "Is always harmless"),
			q("Which habit reduces malware risk the most?",
				3, "Disabling updates", "Installing cracked software", "Using admin accounts for everything", "Keeping the OS and apps patched"),
			q("A worm differs from a virus because it:",
				1, "Needs a host file to run", "Spreads by itself across networks", "Cannot damage data", "Only runs on phones"),
		},
	},
	{
		ID:       "quiz-weak-passwords",
		ThreatID: "weak-passwords",
		Questions: []domain.Question{
			q("Which password is strongest?",
				2, "password123", "Summer2024", "correct-horse-battery-staple-91", "qwerty"),
			q("Why is reusing passwords dangerous?",
				0, "One breach exposes every account using it", "It slows your computer", "Sites reject reused passwords", "It is not dangerous"),
			q("What is a password manager for?",
				1, "Sharing passwords publicly", "Generating and storing unique passwords", "Disabling MFA", "Resetting routers"),
			q("A credential stuffing attack uses:",
				3, "Guessed security questions", "Physical keyloggers", "Shoulder surfing", "Username and password pairs leaked elsewhere"),
		},
	},
}

func q(prompt string, correct int, options ...string) domain.Question {
	return domain.Question{Prompt: prompt, Options: options, CorrectAnswer: correct}
}
