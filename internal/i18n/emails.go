package i18n

import (
	"html"
	"strconv"
	"strings"
	"time"
)

type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}

type emailStrings struct {
	VerifyOTPSubject string
	VerifyOTPText    string
	VerifyOTPHTML    string

	ResetOTPSubject string
	ResetOTPText    string
	ResetOTPHTML    string

	WelcomeSubject string
	WelcomeText    string
	WelcomeHTML    string

	Minute   string
	Minutes  string
	Hour     string
	Hours    string
	Days     string
	NoName   string
	NotGiven string
}

var emailTranslations = map[string]emailStrings{
	"en": {
		VerifyOTPSubject: "Account Verification OTP",
		VerifyOTPText:    "Your OTP is {otp}. Verify your account {email} using this OTP. It is valid for {ttl}.",
		VerifyOTPHTML: "<p>Verify your email</p>" +
			"<p>You are just one step away from securing your account <strong>{email}</strong>.</p>" +
			"<p>Use the code below to verify your account.</p>" +
			"<p><strong>{otp}</strong></p>" +
			"<p>This code is valid for {ttl}.</p>" +
			"<p>If you did not request this, you can ignore this email.</p>",

		ResetOTPSubject: "Password Reset OTP",
		ResetOTPText:    "Your OTP for resetting the password of {email} is {otp}. It is valid for {ttl}.",
		ResetOTPHTML: "<p>Password reset request</p>" +
			"<p>We received a request to reset the password for <strong>{email}</strong>.</p>" +
			"<p>Use the code below to reset your password.</p>" +
			"<p><strong>{otp}</strong></p>" +
			"<p>This code is valid for {ttl}.</p>" +
			"<p>If you did not request this, ignore this email. Your password stays unchanged.</p>",

		WelcomeSubject: "Welcome aboard",
		WelcomeText:    "Hi {name},\n\nyour account has been created with email {email} and phone {phone}.",
		WelcomeHTML: "<p>Hi {name},</p>" +
			"<p>Welcome! Your account has been created.</p>" +
			"<ul><li><strong>Email:</strong> {email}</li>" +
			"<li><strong>Phone:</strong> {phone}</li></ul>" +
			"<p>Please verify your email address with the code we sent you.</p>",

		Minute:   "1 minute",
		Minutes:  "{n} minutes",
		Hour:     "1 hour",
		Hours:    "{n} hours",
		Days:     "{n} days",
		NoName:   "there",
		NotGiven: "not provided",
	},
	"de": {
		VerifyOTPSubject: "OTP zur Kontoverifizierung",
		VerifyOTPText:    "Ihr Code ist {otp}. Verifizieren Sie Ihr Konto {email} mit diesem Code. Er ist {ttl} gültig.",
		VerifyOTPHTML: "<p>E-Mail verifizieren</p>" +
			"<p>Nur noch ein Schritt, um Ihr Konto <strong>{email}</strong> abzusichern.</p>" +
			"<p>Verwenden Sie den untenstehenden Code, um Ihr Konto zu verifizieren.</p>" +
			"<p><strong>{otp}</strong></p>" +
			"<p>Der Code ist {ttl} gültig.</p>" +
			"<p>Wenn Sie dies nicht angefordert haben, können Sie diese E-Mail ignorieren.</p>",

		ResetOTPSubject: "OTP zum Zurücksetzen des Passworts",
		ResetOTPText:    "Ihr Code zum Zurücksetzen des Passworts für {email} ist {otp}. Er ist {ttl} gültig.",
		ResetOTPHTML: "<p>Passwort zurücksetzen</p>" +
			"<p>Wir haben eine Anfrage zum Zurücksetzen des Passworts für <strong>{email}</strong> erhalten.</p>" +
			"<p>Verwenden Sie den untenstehenden Code, um Ihr Passwort zurückzusetzen.</p>" +
			"<p><strong>{otp}</strong></p>" +
			"<p>Der Code ist {ttl} gültig.</p>" +
			"<p>Wenn Sie dies nicht angefordert haben, ignorieren Sie diese E-Mail. Ihr Passwort bleibt unverändert.</p>",

		WelcomeSubject: "Willkommen an Bord",
		WelcomeText:    "Hallo {name},\n\nIhr Konto wurde mit der E-Mail {email} und der Telefonnummer {phone} erstellt.",
		WelcomeHTML: "<p>Hallo {name},</p>" +
			"<p>Willkommen! Ihr Konto wurde erstellt.</p>" +
			"<ul><li><strong>E-Mail:</strong> {email}</li>" +
			"<li><strong>Telefon:</strong> {phone}</li></ul>" +
			"<p>Bitte bestätigen Sie Ihre E-Mail-Adresse mit dem Code, den wir Ihnen gesendet haben.</p>",

		Minute:   "1 Minute",
		Minutes:  "{n} Minuten",
		Hour:     "1 Stunde",
		Hours:    "{n} Stunden",
		Days:     "{n} Tage",
		NoName:   "zusammen",
		NotGiven: "nicht angegeben",
	},
}

func emailStringsForLocale(locale string) emailStrings {
	key := NormalizeLocale(locale)
	if val, ok := emailTranslations[key]; ok {
		return val
	}
	return emailTranslations[DefaultLocale]
}

func renderTemplate(tmpl string, values map[string]string) string {
	if tmpl == "" || len(values) == 0 {
		return tmpl
	}

	replacements := make([]string, 0, len(values)*2)
	for key, value := range values {
		replacements = append(replacements, "{"+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(tmpl)
}

func render(subject, text, htmlTmpl string, values map[string]string) EmailContent {
	escaped := make(map[string]string, len(values))
	for k, v := range values {
		escaped[k] = html.EscapeString(v)
	}
	return EmailContent{
		Subject: subject,
		Text:    renderTemplate(text, values),
		HTML:    renderTemplate(htmlTmpl, escaped),
	}
}

// FormatTTL renders d in the largest whole unit of the locale.
func FormatTTL(locale string, d time.Duration) string {
	s := emailStringsForLocale(locale)
	switch {
	case d >= 48*time.Hour && d%(24*time.Hour) == 0:
		return renderTemplate(s.Days, map[string]string{"n": strconv.Itoa(int(d / (24 * time.Hour)))})
	case d == time.Hour:
		return s.Hour
	case d > time.Hour && d%time.Hour == 0:
		return renderTemplate(s.Hours, map[string]string{"n": strconv.Itoa(int(d / time.Hour))})
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return s.Minute
	}
	return renderTemplate(s.Minutes, map[string]string{"n": strconv.Itoa(minutes)})
}

func VerifyOTPEmail(locale, email, code string, ttl time.Duration) EmailContent {
	s := emailStringsForLocale(locale)
	return render(s.VerifyOTPSubject, s.VerifyOTPText, s.VerifyOTPHTML, map[string]string{
		"email": email,
		"otp":   code,
		"ttl":   FormatTTL(locale, ttl),
	})
}

func ResetOTPEmail(locale, email, code string, ttl time.Duration) EmailContent {
	s := emailStringsForLocale(locale)
	return render(s.ResetOTPSubject, s.ResetOTPText, s.ResetOTPHTML, map[string]string{
		"email": email,
		"otp":   code,
		"ttl":   FormatTTL(locale, ttl),
	})
}

func WelcomeEmail(locale, name, email, phone string) EmailContent {
	s := emailStringsForLocale(locale)
	if strings.TrimSpace(name) == "" {
		name = s.NoName
	}
	if strings.TrimSpace(phone) == "" {
		phone = s.NotGiven
	}
	return render(s.WelcomeSubject, s.WelcomeText, s.WelcomeHTML, map[string]string{
		"name":  name,
		"email": email,
		"phone": phone,
	})
}

// EmailTemplates adapts the localized emails to the credential core's
// subject/html contract.
type EmailTemplates struct{}

func (EmailTemplates) VerifyOTP(locale, email, code string, ttl time.Duration) (string, string) {
	c := VerifyOTPEmail(locale, email, code, ttl)
	return c.Subject, c.HTML
}

func (EmailTemplates) ResetOTP(locale, email, code string, ttl time.Duration) (string, string) {
	c := ResetOTPEmail(locale, email, code, ttl)
	return c.Subject, c.HTML
}

func (EmailTemplates) Welcome(locale, name, email, phone string) (string, string) {
	c := WelcomeEmail(locale, name, email, phone)
	return c.Subject, c.HTML
}
