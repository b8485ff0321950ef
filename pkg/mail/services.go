package mail

import (
	"sort"
	"strings"
	"unicode"
)

// Preset holds the connection parameters of a well-known mail service.
type Preset struct {
	Name    string
	Host    string
	Port    int
	Secure  bool
	Aliases []string
}

var presets = []Preset{
	{Name: "126", Host: "smtp.126.com", Port: 465, Secure: true},
	{Name: "163", Host: "smtp.163.com", Port: 465, Secure: true},
	{Name: "1und1", Host: "smtp.1und1.de", Port: 465, Secure: true},
	{Name: "AOL", Host: "smtp.aol.com", Port: 587},
	{Name: "DebugMail", Host: "debugmail.io", Port: 25},
	{Name: "DynectEmail", Host: "smtp.dynect.net", Port: 25, Aliases: []string{"Dynect"}},
	{Name: "FastMail", Host: "smtp.fastmail.com", Port: 465, Secure: true},
	{Name: "GandiMail", Host: "mail.gandi.net", Port: 587, Aliases: []string{"Gandi", "Gandi Mail"}},
	{Name: "Gmail", Host: "smtp.gmail.com", Port: 465, Secure: true, Aliases: []string{"Google Mail"}},
	{Name: "Godaddy", Host: "smtpout.secureserver.net", Port: 25},
	{Name: "GodaddyAsia", Host: "smtp.asia.secureserver.net", Port: 25},
	{Name: "GodaddyEurope", Host: "smtp.europe.secureserver.net", Port: 25},
	{Name: "hot.ee", Host: "mail.hot.ee", Port: 25},
	{Name: "Hotmail", Host: "smtp-mail.outlook.com", Port: 587, Aliases: []string{"Outlook", "Outlook.com", "Hotmail.com"}},
	{Name: "iCloud", Host: "smtp.mail.me.com", Port: 587, Aliases: []string{"Me", "Mac"}},
	{Name: "mail.ee", Host: "smtp.mail.ee", Port: 25},
	{Name: "Mail.ru", Host: "smtp.mail.ru", Port: 465, Secure: true},
	{Name: "Maildev", Host: "127.0.0.1", Port: 1025},
	{Name: "Mailgun", Host: "smtp.mailgun.org", Port: 465, Secure: true},
	{Name: "Mailjet", Host: "in.mailjet.com", Port: 587},
	{Name: "Mailosaur", Host: "mailosaur.io", Port: 25},
	{Name: "Mandrill", Host: "smtp.mandrillapp.com", Port: 587},
	{Name: "Naver", Host: "smtp.naver.com", Port: 587},
	{Name: "OpenMailBox", Host: "smtp.openmailbox.org", Port: 465, Secure: true, Aliases: []string{"OMB", "openmailbox.org"}},
	{Name: "Outlook365", Host: "smtp.office365.com", Port: 587},
	{Name: "Postmark", Host: "smtp.postmarkapp.com", Port: 2525, Aliases: []string{"PostmarkApp"}},
	{Name: "QQ", Host: "smtp.qq.com", Port: 465, Secure: true},
	{Name: "QQex", Host: "smtp.exmail.qq.com", Port: 465, Secure: true},
	{Name: "SendCloud", Host: "smtpcloud.sohu.com", Port: 25},
	{Name: "SendGrid", Host: "smtp.sendgrid.net", Port: 587},
	{Name: "SendinBlue", Host: "smtp-relay.sendinblue.com", Port: 587, Aliases: []string{"Brevo"}},
	{Name: "SendPulse", Host: "smtp-pulse.com", Port: 465, Secure: true},
	{Name: "SES", Host: "email-smtp.us-east-1.amazonaws.com", Port: 465, Secure: true, Aliases: []string{"SES-US-EAST-1"}},
	{Name: "SES-US-WEST-2", Host: "email-smtp.us-west-2.amazonaws.com", Port: 465, Secure: true},
	{Name: "SES-EU-WEST-1", Host: "email-smtp.eu-west-1.amazonaws.com", Port: 465, Secure: true},
	{Name: "SparkPost", Host: "smtp.sparkpostmail.com", Port: 587, Aliases: []string{"SparkPost Mail"}},
	{Name: "Yahoo", Host: "smtp.mail.yahoo.com", Port: 465, Secure: true},
	{Name: "Yandex", Host: "smtp.yandex.ru", Port: 465, Secure: true},
	{Name: "Zoho", Host: "smtp.zoho.com", Port: 465, Secure: true},
	{Name: "qiye.aliyun", Host: "smtp.mxhichina.com", Port: 465, Secure: true},
}

var presetIndex = buildPresetIndex()

func buildPresetIndex() map[string]Preset {
	idx := make(map[string]Preset, len(presets)*2)
	for _, p := range presets {
		idx[normalizeService(p.Name)] = p
		for _, a := range p.Aliases {
			idx[normalizeService(a)] = p
		}
	}
	return idx
}

// LookupService finds a preset by name or alias, ignoring case and punctuation.
func LookupService(name string) (Preset, bool) {
	p, ok := presetIndex[normalizeService(name)]
	return p, ok
}

// Services lists the canonical preset names in alphabetical order.
func Services() []string {
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

func normalizeService(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
