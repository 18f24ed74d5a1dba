package utils

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func GetEmailConfig() *EmailConfig {
	return &EmailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

func SendEmail(to, subject, htmlBody string) error {
	config := GetEmailConfig()
	if config.Host == "" || config.Port == "" || config.From == "" {
		return fmt.Errorf("SMTP not configured")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		config.From, to, subject)
	msg := []byte(headers + htmlBody)

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	addr := config.Host + ":" + config.Port
	return smtp.SendMail(addr, auth, config.From, []string{to}, msg)
}

func SendWelcomeEmail(email, name string) {
	go func() {
		subject := "Welcome to Dumpling House Rewards!"
		body := fmt.Sprintf(`<h2>Welcome, %s!</h2>
<p>Your rewards account is ready. From now on you can:</p>
<ul>
<li>Scan your receipt after every visit to earn 5 points per dollar</li>
<li>Redeem points for free dumplings, drinks and more</li>
<li>Track your balance and redemption history in the app</li>
</ul>
<p>See you soon!</p>
<p>The Dumpling House Team</p>`, firstName(name))
		if err := SendEmail(email, subject, body); err != nil {
			log.Printf("Failed to send welcome email to %s: %v", email, err)
		}
	}()
}

// SendRedemptionExpiredEmail tells the user their reserved reward lapsed and
// the points came back.
func SendRedemptionExpiredEmail(email, name, rewardTitle string, points int) {
	go func() {
		subject := "Your reward expired - points refunded"
		body := fmt.Sprintf(`<h2>Hi %s,</h2>
<p>Your redemption of <strong>%s</strong> was not used in time, so we have
returned the <strong>%d points</strong> to your balance.</p>
<p>You can redeem again any time from the rewards tab.</p>
<p>The Dumpling House Team</p>`, firstName(name), rewardTitle, points)
		if err := SendEmail(email, subject, body); err != nil {
			log.Printf("Failed to send redemption expired email to %s: %v", email, err)
		}
	}()
}

func SendPasswordResetEmail(email, name, token, frontendURL string) {
	go func() {
		resetLink := fmt.Sprintf("%s/reset-password?token=%s", frontendURL, token)
		subject := "Reset your password"
		body := fmt.Sprintf(`<h2>Hi %s,</h2>
<p>We received a request to reset your password. Click the link below to choose a new one:</p>
<p><a href="%s">Reset password</a></p>
<p>The link expires in 1 hour. If you did not request this, you can ignore this email.</p>
<p>The Dumpling House Team</p>`, firstName(name), resetLink)
		if err := SendEmail(email, subject, body); err != nil {
			log.Printf("Failed to send password reset email to %s: %v", email, err)
		}
	}()
}

func firstName(name string) string {
	if name == "" {
		return "there"
	}
	return strings.Split(name, " ")[0]
}
