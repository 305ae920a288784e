package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Settlement Statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Statement number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Period: "+data.PeriodMonth, props.Text{Top: 4}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 8}),
			text.New("Status: "+data.Status, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New(data.PlatformName, props.Text{Style: fontstyle.Bold}),
			text.New("Settlement for", props.Text{Top: 8, Style: fontstyle.Bold}),
			text.New(data.KitchenName, props.Text{Top: 12}),
			text.New(data.KitchenCity, props.Text{Top: 16}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Sub-order", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Completed", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Gross", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Commission", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, data.VATLabel, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Net", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range data.Lines {
		m.AddRow(8,
			text.NewCol(3, line.SubOrderID, props.Text{Size: 8}),
			text.NewCol(2, line.CompletedAt, props.Text{Size: 8}),
			text.NewCol(2, line.Gross, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, line.Commission+" ("+line.CommissionRate+")", props.Text{Size: 8, Align: align.Right}),
			text.NewCol(1, line.VAT, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, line.Net, props.Text{Size: 8, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Gross sales", props.Text{Size: 9}),
		text.NewCol(2, data.GrossSales, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Commission", props.Text{Size: 9}),
		text.NewCol(2, data.CommissionTotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, data.VATLabel, props.Text{Size: 9}),
		text.NewCol(2, data.VATTotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Net payable", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.NetPayable, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Paid out", props.Text{Size: 9}),
		text.NewCol(2, data.AmountPaid, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
