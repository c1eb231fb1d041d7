package http

import (
	"net/url"
	"strconv"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/session"
)

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type formView struct {
	Title  string
	Amount string
	Date   string
	Today  string
	Types  []optionView
}

type filterView struct {
	Windows []optionView
	Types   []optionView
	Custom  bool
	From    string
	To      string
}

type rowView struct {
	ID         string
	DeletePath string
	Title      string
	Amount     string
	Type       string
	Date       string
	Class      string
}

type totalsView struct {
	Income   string
	Expenses string
	Balance  string
	Negative bool
}

type historyView struct {
	Rows       []rowView
	Totals     totalsView
	Range      string
	FetchError bool
}

type pageData struct {
	Form    formView
	Filter  filterView
	History historyView
}

func newPageData(v session.View, now time.Time) pageData {
	return pageData{
		Form:    newFormView(v.State.Form, now),
		Filter:  newFilterView(v.State.Filter),
		History: newHistoryView(v, now),
	}
}

func newFormView(f core.Form, now time.Time) formView {
	today := todayString(now)
	fv := formView{Title: f.Title, Amount: f.Amount, Date: f.Date, Today: today}
	if fv.Date == "" {
		fv.Date = today
	}
	selected := f.Type
	if selected == "" {
		selected = core.EmptyForm().Type
	}
	for _, t := range core.TransactionTypes() {
		fv.Types = append(fv.Types, optionView{Value: t.String(), Label: t.String(), Selected: t == selected})
	}
	return fv
}

func newFilterView(f core.Filter) filterView {
	fv := filterView{Custom: f.Range.IsExplicit()}
	if fv.Custom {
		fv.From = core.DateOf(f.Range.Start).String()
		fv.To = core.DateOf(f.Range.End).String()
	}
	for _, w := range core.Windows() {
		fv.Windows = append(fv.Windows, optionView{
			Value:    strconv.Itoa(int(w)),
			Label:    w.Label(),
			Selected: !fv.Custom && w == f.Range.Window,
		})
	}
	typ := f.Type
	if typ == "" {
		typ = core.AllTypes
	}
	for _, t := range core.TypeFilters() {
		fv.Types = append(fv.Types, optionView{Value: string(t), Label: string(t), Selected: t == typ})
	}
	return fv
}

func newHistoryView(v session.View, now time.Time) historyView {
	hv := historyView{
		Totals: totalsView{
			Income:   formatAmount(v.Totals.Income),
			Expenses: formatAmount(v.Totals.Expenses),
			Balance:  formatAmount(v.Totals.Balance),
			Negative: v.Totals.Balance < 0,
		},
		FetchError: v.State.LastFetch.Err != nil,
	}
	if q, err := core.BuildQuery(v.State.Filter, now); err == nil {
		hv.Range = q.From.String() + " to " + q.To.String()
	}
	for _, tx := range v.Records {
		hv.Rows = append(hv.Rows, rowView{
			ID:         tx.ID.String(),
			DeletePath: "/transactions/" + url.PathEscape(tx.ID.String()),
			Title:      tx.Title,
			Amount:     formatAmount(tx.Amount),
			Type:       tx.Type.String(),
			Date:       tx.Date.String(),
			Class:      rowClass(tx.Type),
		})
	}
	return hv
}

func rowClass(t core.TransactionType) string {
	switch t {
	case core.Income:
		return "income"
	case core.Expenses:
		return "expense"
	}
	return ""
}
