package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"ticketchain/entity"
	"ticketchain/metadata"
)

var ticketTemplate = template.Must(template.New("ticket").Funcs(template.FuncMap{
	"xml": func(s string) (string, error) {
		var buf bytes.Buffer
		if err := xml.EscapeText(&buf, []byte(s)); err != nil {
			return "", err
		}
		return buf.String(), nil
	},
}).Parse(`<svg width="400" height="600" xmlns="http://www.w3.org/2000/svg">
  <defs>
    <linearGradient id="grad" x1="0%" y1="0%" x2="100%" y2="100%">
      <stop offset="0%" style="stop-color:#8B5CF6;stop-opacity:1" />
      <stop offset="100%" style="stop-color:#EC4899;stop-opacity:1" />
    </linearGradient>
  </defs>
  <rect width="400" height="600" fill="url(#grad)"/>
  <rect x="10" y="10" width="380" height="580" fill="none" stroke="white" stroke-width="2" rx="10"/>
  <text x="200" y="80" font-family="Arial, sans-serif" font-size="32" font-weight="bold" fill="white" text-anchor="middle">{{ xml .EventName }}</text>
  <text x="200" y="120" font-family="Arial, sans-serif" font-size="24" fill="white" text-anchor="middle">{{ .Year }}</text>
  <rect x="140" y="150" width="120" height="40" fill="rgba(255,255,255,0.2)" rx="5"/>
  <text x="200" y="177" font-family="Arial, sans-serif" font-size="18" font-weight="bold" fill="white" text-anchor="middle">{{ xml .Category }}</text>
  <text x="50" y="250" font-family="Arial, sans-serif" font-size="16" fill="white" font-weight="bold">EVENT DETAILS</text>
  <text x="50" y="290" font-family="Arial, sans-serif" font-size="14" fill="rgba(255,255,255,0.9)">Sector: {{ xml .Section }}</text>
  <text x="50" y="320" font-family="Arial, sans-serif" font-size="14" fill="rgba(255,255,255,0.9)">Seat: {{ xml .Seat }}</text>
  <text x="50" y="350" font-family="Arial, sans-serif" font-size="14" fill="rgba(255,255,255,0.9)">Date: {{ .Date }}</text>
  <text x="200" y="560" font-family="Arial, sans-serif" font-size="12" fill="rgba(255,255,255,0.7)" text-anchor="middle">NFT Ticket - Blockchain Verified</text>
</svg>
`))

// TicketRenderer draws the ticket image as SVG.
type TicketRenderer struct{}

func (TicketRenderer) Render(_ context.Context, fields entity.TicketFields) (entity.Artifact, error) {
	date, err := metadata.ParseEventDate(fields.Date)
	if err != nil {
		return entity.Artifact{}, err
	}

	category := fields.Category
	if category == "" {
		category = "General"
	}

	var buf bytes.Buffer
	err = ticketTemplate.Execute(&buf, struct {
		EventName string
		Year      int
		Category  string
		Section   string
		Seat      string
		Date      string
	}{
		EventName: fields.EventName,
		Year:      date.Year(),
		Category:  category,
		Section:   fields.Section,
		Seat:      fields.Seat,
		Date:      date.Format("02/01/2006"),
	})
	if err != nil {
		return entity.Artifact{}, fmt.Errorf("could not render ticket: %w", err)
	}

	return entity.Artifact{
		Name:        ticketFileName(fields) + ".svg",
		ContentType: "image/svg+xml",
		Content:     buf.Bytes(),
	}, nil
}

func ticketFileName(fields entity.TicketFields) string {
	name := strings.ToLower(fmt.Sprintf("ticket-%s-%s", fields.EventName, fields.Seat))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}
