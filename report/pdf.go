package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/go-pdf/fpdf"
)

const (
	pageWidth   = 190.0
	labelWidth  = 40.0
	lineHeight  = 6.0
	sectionGap  = 4.0
	headerColor = 79
)

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (p *pdfWriter) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(labelWidth, lineHeight, p.tr(label), "", 0, "L", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.MultiCell(pageWidth-labelWidth, lineHeight, p.tr(value), "", "L", false)
}

func (p *pdfWriter) section(title string) {
	p.pdf.Ln(sectionGap)
	p.pdf.SetFont("Helvetica", "B", 12)
	p.pdf.SetFillColor(headerColor, 70, 229)
	p.pdf.SetTextColor(255, 255, 255)
	p.pdf.CellFormat(pageWidth, lineHeight+1, p.tr(title), "", 1, "L", true, 0, "")
	p.pdf.SetTextColor(0, 0, 0)
	p.pdf.Ln(1)
}

// WriteClinicalHistoryPDF renders the patient's clinical history to w.
func WriteClinicalHistoryPDF(w io.Writer, org model.Organization, patient model.Patient, h History, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Historia clinica %s", patient.HistoryNumber), true)
	pdf.SetAuthor(org.Name, true)
	pdf.SetCreationDate(now)
	pdf.AliasNbPages("")
	p := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(pageWidth, 8, p.tr(org.Name), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		contact := strings.Trim(strings.Join([]string{org.Address, org.Phone}, " - "), " -")
		pdf.CellFormat(pageWidth, 5, p.tr(contact), "B", 1, "L", false, 0, "")
		pdf.Ln(3)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(pageWidth/2, 10, p.tr("Emitido el "+now.Format("02/01/2006 15:04")), "", 0, "L", false, 0, "")
		pdf.CellFormat(pageWidth/2, 10, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(pageWidth, 10, p.tr("Historia Clínica"), "", 1, "C", false, 0, "")

	p.section("Datos del paciente")
	p.field("N° de historia", patient.HistoryNumber)
	p.field("Nombre", patient.FullName)
	p.field("Documento", patient.DocumentNumber)
	if patient.BirthDate != nil {
		p.field("Nacimiento", fmt.Sprintf("%s (%d años)", patient.BirthDate.Format("02/01/2006"), patient.Age(now)))
	} else {
		p.field("Nacimiento", "")
	}
	p.field("Teléfono", patient.PhoneNumber)
	p.field("Obra social", strings.TrimSpace(patient.HealthInsurance+" "+patient.InsuranceNumber))
	p.field("Antecedentes", patient.HealthHistory)
	p.field("Cirugías", patient.SurgeryHistory)

	p.section(fmt.Sprintf("Evoluciones (%d)", h.Total))
	if h.Total == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(pageWidth, lineHeight, p.tr("Sin registros clínicos."), "", 1, "L", false, 0, "")
	}
	for _, g := range h.BySpecialty {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(pageWidth, lineHeight, p.tr(fmt.Sprintf("%s (%d)", g.Name, g.Count)), "B", 1, "L", false, 0, "")
		for _, m := range g.Months {
			pdf.SetFont("Helvetica", "BI", 10)
			pdf.CellFormat(pageWidth, lineHeight, p.tr(strings.ToUpper(m.Label[:1])+m.Label[1:]), "", 1, "L", false, 0, "")
			for _, r := range m.Records {
				by := ""
				if r.Specialist != nil {
					by = " - " + r.Specialist.FullName
				}
				pdf.SetFont("Helvetica", "U", 10)
				pdf.CellFormat(pageWidth, lineHeight, p.tr(r.RecordDate.In(now.Location()).Format("02/01/2006")+by), "", 1, "L", false, 0, "")
				p.field("Motivo", r.Reason)
				p.field("Diagnóstico", r.Diagnosis)
				p.field("Tratamiento", r.Treatment)
				p.field("Evolución", r.Evolution)
				pdf.Ln(1)
			}
		}
	}

	return pdf.Output(w)
}
