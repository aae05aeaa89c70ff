package parsers

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// OFXTransaction is one <STMTTRN> aggregate as written in the file
type OFXTransaction struct {
	Ordinal  int
	TrnType  string
	DtPosted string
	TrnAmt   string
	FitID    string
	Memo     string
	Name     string
}

var (
	ofxRootRe  = regexp.MustCompile(`(?i)<OFX>`)
	ofxBlockRe = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	ofxDateRe  = regexp.MustCompile(`^\s*(\d{4})(\d{2})(\d{2})`)
	ofxFieldRe = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"TRNTYPE", "DTPOSTED", "TRNAMT", "FITID", "MEMO", "NAME"} {
		ofxFieldRe[tag] = regexp.MustCompile(`(?i)<` + tag + `>[ \t]*([^<\r\n]*)`)
	}
}

// record converts the OFX aggregate into the format-neutral shape.
// The amount sign carries the direction; DTPOSTED keeps only its YYYYMMDD prefix.
func (t OFXTransaction) record() rawRecord {
	date := t.DtPosted
	if m := ofxDateRe.FindStringSubmatch(t.DtPosted); m != nil {
		date = m[1] + "-" + m[2] + "-" + m[3]
	}

	description := strings.TrimSpace(t.Memo)
	if description == "" {
		description = strings.TrimSpace(t.Name)
	}
	if description == "" {
		description = "Transação " + strings.TrimSpace(t.TrnType)
	}

	return rawRecord{
		Line:        t.Ordinal,
		Date:        date,
		TypeHint:    t.TrnType,
		Amount:      t.TrnAmt,
		SignedSide:  true,
		Description: description,
		Document:    t.FitID,
	}
}

// readOFX reads OFX 2.x as XML and falls back to tag scanning for OFX 1.x SGML
func (p *StatementParser) readOFX(text string, stats *ParseStats) []rawRecord {
	stats.TotalLines = len(splitLines(text))

	txns, err := readOFXDocument(text)
	if err != nil || len(txns) == 0 {
		if err != nil {
			p.logger.WithError(err).Debug("OFX content is not well-formed XML, scanning STMTTRN blocks")
		}
		txns = readOFXBlocks(text)
	}

	records := make([]rawRecord, 0, len(txns))
	for _, txn := range txns {
		records = append(records, txn.record())
	}
	return records
}

func readOFXDocument(text string) ([]OFXTransaction, error) {
	body := text
	if loc := ofxRootRe.FindStringIndex(text); loc != nil && !strings.Contains(text[:loc[0]], "<?xml") {
		// SGML header lines before <OFX> are not XML
		body = text[loc[0]:]
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil, err
	}

	elements := doc.FindElements("//STMTTRN")
	txns := make([]OFXTransaction, 0, len(elements))
	for i, el := range elements {
		txns = append(txns, OFXTransaction{
			Ordinal:  i + 1,
			TrnType:  childText(el, "TRNTYPE"),
			DtPosted: childText(el, "DTPOSTED"),
			TrnAmt:   childText(el, "TRNAMT"),
			FitID:    childText(el, "FITID"),
			Memo:     childText(el, "MEMO"),
			Name:     childText(el, "NAME"),
		})
	}
	return txns, nil
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

func readOFXBlocks(text string) []OFXTransaction {
	blocks := ofxBlockRe.FindAllStringSubmatch(text, -1)
	txns := make([]OFXTransaction, 0, len(blocks))
	for i, block := range blocks {
		body := block[1]
		txns = append(txns, OFXTransaction{
			Ordinal:  i + 1,
			TrnType:  ofxField(body, "TRNTYPE"),
			DtPosted: ofxField(body, "DTPOSTED"),
			TrnAmt:   ofxField(body, "TRNAMT"),
			FitID:    ofxField(body, "FITID"),
			Memo:     ofxField(body, "MEMO"),
			Name:     ofxField(body, "NAME"),
		})
	}
	return txns
}

func ofxField(body, tag string) string {
	m := ofxFieldRe[tag].FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
