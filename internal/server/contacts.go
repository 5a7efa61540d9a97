package server

import (
	"context"
	"net/http"

	"github.com/addiskers/dispatch--sub001/internal/analytics"
	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/filter"
	"github.com/addiskers/dispatch--sub001/internal/paginate"
)

// loadContacts fetches the contacts matching spec, capped at
// s.contactLimit. When created is set the date window
// applies to contact creation time.
func (s *Server) loadContacts(
	ctx context.Context, spec filter.Spec, created bool,
) ([]crm.Contact, error) {
	where := spec.ContactPredicate()
	if created {
		where = db.And(where, spec.CreatedPredicate())
	}
	contacts, err := s.db.FindContacts(ctx, db.Query{
		Where: where,
		Sort:  []db.Sort{{Field: db.FieldCreatedAt, Desc: true}},
		Limit: s.contactLimit,
	})
	if err != nil {
		return nil, err
	}

	out := contacts[:0]
	for _, c := range contacts {
		if !spec.MatchContact(c) {
			continue
		}
		if created && !spec.MatchCreated(c) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type contactsResponse struct {
	Contacts  []analytics.ContactRow `json:"contacts"`
	Analytics analytics.ContactStats `json:"analytics"`
}

func (s *Server) handleContacts(
	w http.ResponseWriter, r *http.Request,
) {
	q := r.URL.Query()
	spec := s.compile(q, false)

	contacts, err := s.loadContacts(r.Context(), spec, true)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	rows := analytics.DeriveRows(contacts)
	column, desc := sortParams(q)
	analytics.SortRows(rows, column, desc)

	page, limit := s.pageParams(q)
	items, p := paginate.Slice(rows, page, limit)
	writePage(w, contactsResponse{
		Contacts:  items,
		Analytics: analytics.CalculateStats(contacts, spec.AnalyticsCountries),
	}, p)
}

func (s *Server) handleContactStats(
	w http.ResponseWriter, r *http.Request,
) {
	spec := s.compile(r.URL.Query(), false)

	contacts, err := s.loadContacts(r.Context(), spec, true)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, analytics.CalculateStats(contacts, spec.AnalyticsCountries))
}
