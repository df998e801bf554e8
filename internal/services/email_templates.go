package services

import "fmt"

type emailTemplate struct {
	Subject  string
	HTMLBody string
	TextBody string
}

func joinRequestTemplate(groupName, requesterName, requesterEmail, message string) emailTemplate {
	if message == "" {
		message = "(no message)"
	}
	return emailTemplate{
		Subject: fmt.Sprintf("New join request for %s", groupName),
		HTMLBody: fmt.Sprintf(`<h2>New join request</h2>
<p><strong>%s</strong> (%s) has requested to join <strong>%s</strong>.</p>
<p>Message: %s</p>
<p>Review the request from your group dashboard.</p>`,
			requesterName, requesterEmail, groupName, message),
		TextBody: fmt.Sprintf(
			"New join request\n\n%s (%s) has requested to join %s.\n\nMessage: %s\n\nReview the request from your group dashboard.\n",
			requesterName, requesterEmail, groupName, message),
	}
}

func joinApprovedTemplate(groupName string) emailTemplate {
	return emailTemplate{
		Subject: fmt.Sprintf("Welcome to %s", groupName),
		HTMLBody: fmt.Sprintf(`<h2>You're in!</h2>
<p>Your request to join <strong>%s</strong> has been approved.</p>
<p>Sign in to start purchasing with your group.</p>`, groupName),
		TextBody: fmt.Sprintf(
			"You're in!\n\nYour request to join %s has been approved.\nSign in to start purchasing with your group.\n",
			groupName),
	}
}

func joinRejectedTemplate(groupName string) emailTemplate {
	return emailTemplate{
		Subject: fmt.Sprintf("Update on your request to join %s", groupName),
		HTMLBody: fmt.Sprintf(`<p>Your request to join <strong>%s</strong> was not approved at this time.</p>`,
			groupName),
		TextBody: fmt.Sprintf("Your request to join %s was not approved at this time.\n", groupName),
	}
}

func invitationTemplate(groupName, inviterName, invitationURL string) emailTemplate {
	return emailTemplate{
		Subject: fmt.Sprintf("Join %s - Group Purchasing Organization", groupName),
		HTMLBody: fmt.Sprintf(`<h2>You're invited to join %s!</h2>
<p>%s has invited you to join their group purchasing organization.</p>
<p><strong>What you'll get:</strong></p>
<ul>
<li>Access to bulk purchasing discounts</li>
<li>Curated products for your industry</li>
<li>Network with other businesses</li>
</ul>
<p><a href="%s">Join Group Now</a></p>
<p>This invitation link will expire, so don't wait.</p>`,
			groupName, inviterName, invitationURL),
		TextBody: fmt.Sprintf(
			"You're invited to join %s!\n\n%s has invited you to join their group purchasing organization.\n\nJoin now: %s\n\nThis invitation link will expire, so don't wait.\n",
			groupName, inviterName, invitationURL),
	}
}

func welcomeTemplate(displayName string) emailTemplate {
	return emailTemplate{
		Subject: "Welcome to Procur",
		HTMLBody: fmt.Sprintf(`<h2>Welcome, %s!</h2>
<p>Your account is ready. Browse public groups or create your own to start purchasing together.</p>`,
			displayName),
		TextBody: fmt.Sprintf(
			"Welcome, %s!\n\nYour account is ready. Browse public groups or create your own to start purchasing together.\n",
			displayName),
	}
}
