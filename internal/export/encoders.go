package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/yuin/goldmark"

	"github.com/nugget/kith/internal/model"
)

func encodeJSON(buf *bytes.Buffer, recs []model.Record, label string, at time.Time) error {
	if recs == nil {
		recs = []model.Record{}
	}
	doc := struct {
		Label      string         `json:"label"`
		ExportedAt time.Time      `json:"exported_at"`
		Count      int            `json:"count"`
		Records    []model.Record `json:"records"`
	}{label, at.UTC(), len(recs), recs}

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func encodeCSV(buf *bytes.Buffer, recs []model.Record, _ string, _ time.Time) error {
	keys := fieldKeys(recs)
	hasTags := false
	for _, r := range recs {
		if len(r.Tags) > 0 {
			hasTags = true
			break
		}
	}

	w := csv.NewWriter(buf)
	header := append([]string{"id", "type", "name"}, keys...)
	if hasTags {
		header = append(header, "tags")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{r.ID, string(r.Type), r.Name}
		for _, k := range keys {
			row = append(row, r.Field(k))
		}
		if hasTags {
			row = append(row, strings.Join(r.Tags, ";"))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func encodeVCard(buf *bytes.Buffer, recs []model.Record, _ string, _ time.Time) error {
	enc := vcard.NewEncoder(buf)
	for _, r := range recs {
		if r.Type != model.EntityContact {
			return fmt.Errorf("%w: vcard holds contacts only, got %s %q", ErrUnsupported, r.Type, r.Name)
		}
		card := vcard.Card{}
		card.SetValue(vcard.FieldUID, "urn:uuid:"+r.ID)
		card.SetValue(vcard.FieldFormattedName, r.Name)
		card.SetName(splitName(r.Name))
		if v := r.Field("email"); v != "" {
			card.AddValue(vcard.FieldEmail, v)
		}
		if v := r.Field("phone"); v != "" {
			card.AddValue(vcard.FieldTelephone, v)
		}
		if v := r.Field("company"); v != "" {
			card.SetValue(vcard.FieldOrganization, v)
		}
		if v := r.Field("summary"); v != "" {
			card.SetValue(vcard.FieldNote, v)
		}
		if len(r.Tags) > 0 {
			card.SetValue(vcard.FieldCategories, strings.Join(r.Tags, ","))
		}
		vcard.ToV4(card)
		if err := enc.Encode(card); err != nil {
			return fmt.Errorf("encode vcard for %q: %w", r.Name, err)
		}
	}
	return nil
}

// splitName treats the last word as the family name.
func splitName(full string) *vcard.Name {
	parts := strings.Fields(full)
	n := &vcard.Name{}
	switch len(parts) {
	case 0:
	case 1:
		n.GivenName = parts[0]
	default:
		n.GivenName = strings.Join(parts[:len(parts)-1], " ")
		n.FamilyName = parts[len(parts)-1]
	}
	return n
}

func encodeMarkdown(buf *bytes.Buffer, recs []model.Record, label string, at time.Time) error {
	title := label
	if title == "" {
		title = "Export"
	}
	var et model.EntityType
	if len(recs) > 0 {
		et = recs[0].Type
	}
	fmt.Fprintf(buf, "# %s\n\n_%d %s, exported %s_\n", title, len(recs), et.Noun(len(recs)), at.Format("2006-01-02 15:04"))

	keys := fieldKeys(recs)
	for _, r := range recs {
		fmt.Fprintf(buf, "\n## %s\n\n", r.Name)
		for _, k := range keys {
			if v := r.Field(k); v != "" {
				fmt.Fprintf(buf, "- **%s**: %s\n", k, strings.ReplaceAll(v, "\n", " "))
			}
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(buf, "- **tags**: %s\n", strings.Join(r.Tags, ", "))
		}
	}
	return nil
}

func encodeHTML(buf *bytes.Buffer, recs []model.Record, label string, at time.Time) error {
	var md bytes.Buffer
	if err := encodeMarkdown(&md, recs, label, at); err != nil {
		return err
	}
	fmt.Fprintf(buf, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString(label))
	if err := goldmark.Convert(md.Bytes(), buf); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	buf.WriteString("</body>\n</html>\n")
	return nil
}
