package alerts

import (
	"fmt"
	"html"
	"time"
)

func bidSelectedEmail(p BidSelectedPayload) Email {
	name, title := html.EscapeString(p.Name), html.EscapeString(p.ProjectTitle)
	return Email{
		To:      p.Email,
		Subject: fmt.Sprintf("Your bid for %s has been selected!", p.ProjectTitle),
		Text: fmt.Sprintf("Congratulations %s! Your bid for the project %q has been selected. "+
			"Please log in to your account to view the details and start working on the project.", p.Name, p.ProjectTitle),
		HTML: fmt.Sprintf("<h1>Congratulations %s!</h1>\n"+
			"<p>Your bid for the project <strong>%s</strong> has been selected.</p>\n"+
			"<p>Please log in to your account to view the details and start working on the project.</p>\n"+
			"<p>Thank you for using our platform!</p>", name, title),
	}
}

func projectCompletedEmail(p ProjectCompletedPayload) Email {
	name, title := html.EscapeString(p.Name), html.EscapeString(p.ProjectTitle)
	e := Email{
		To:      p.Email,
		Subject: fmt.Sprintf("Project %s has been completed!", p.ProjectTitle),
	}
	if p.Role == "buyer" {
		e.Text = fmt.Sprintf("Dear %s, the project %q has been marked as completed. "+
			"Please log in to your account to leave a review for the seller.", p.Name, p.ProjectTitle)
		e.HTML = fmt.Sprintf("<h1>Project Completed!</h1>\n<p>Dear %s,</p>\n"+
			"<p>The project <strong>%s</strong> has been marked as completed.</p>\n"+
			"<p>Please log in to your account to leave a review for the seller.</p>\n"+
			"<p>Thank you for using our platform!</p>", name, title)
		return e
	}
	e.Text = fmt.Sprintf("Congratulations %s! The project %q has been marked as completed. "+
		"The buyer has accepted your deliverables.", p.Name, p.ProjectTitle)
	e.HTML = fmt.Sprintf("<h1>Project Completed!</h1>\n<p>Congratulations %s!</p>\n"+
		"<p>The project <strong>%s</strong> has been marked as completed.</p>\n"+
		"<p>The buyer has accepted your deliverables.</p>\n"+
		"<p>Thank you for using our platform!</p>", name, title)
	return e
}

func passwordResetEmail(p PasswordResetPayload) Email {
	minutes := int(p.ExpiresIn / time.Minute)
	if minutes <= 0 {
		minutes = 30
	}
	return Email{
		To:      p.Email,
		Subject: "Password reset instructions",
		Text: fmt.Sprintf("Hello %s,\n\nWe received a request to reset your BidHub password.\n\n"+
			"To proceed, open the link below:\n%s\n\n"+
			"This link expires in %d minutes. If you did not request this, no action is required.", p.Name, p.ResetURL, minutes),
	}
}
