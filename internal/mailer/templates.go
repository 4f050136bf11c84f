package mailer

import (
	"fmt"
	"html"
)

func welcomeEmail(appName, firstName, dashboardURL string) (string, string) {
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Welcome to %[1]s</title>
</head>
<body>
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
<h1>Welcome to %[1]s, %[2]s!</h1>
<p>We're excited to have you on board. Get started by exploring your dashboard.</p>
<a href="%[3]s" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Go to Dashboard</a>
</div>
</body>
</html>
`, html.EscapeString(appName), html.EscapeString(firstName), dashboardURL)

	textBody := fmt.Sprintf(`Welcome to %[1]s, %[2]s!

We're excited to have you on board. Get started by exploring your dashboard.

Dashboard: %[3]s
`, appName, firstName, dashboardURL)

	return htmlBody, textBody
}

func invitationEmail(boardName, inviterName, boardURL string) (string, string) {
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invitation to %[1]s</title>
</head>
<body>
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
<h1>You're invited to join %[1]s</h1>
<p>%[2]s has invited you to collaborate on this board.</p>
<a href="%[3]s" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Join Board</a>
</div>
</body>
</html>
`, html.EscapeString(boardName), html.EscapeString(inviterName), boardURL)

	textBody := fmt.Sprintf(`You're invited to join %[1]s

%[2]s has invited you to collaborate on this board.

Join Board: %[3]s
`, boardName, inviterName, boardURL)

	return htmlBody, textBody
}
