package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullLeadID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func leadIDPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}

func marshalEventData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return b, nil
}

func scanSessionRow(row rowScanner) (*v1.Session, error) {
	var (
		s         v1.Session
		leadID    sql.NullInt64
		ipAddress sql.NullString
		userAgent sql.NullString
		referrer  sql.NullString
		utmSrc    sql.NullString
		utmMed    sql.NullString
		utmCamp   sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.AnonymousID, &leadID, &ipAddress, &userAgent, &referrer,
		&utmSrc, &utmMed, &utmCamp, &s.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	s.LeadID = leadIDPtr(leadID)
	s.IPAddress = ipAddress.String
	s.UserAgent = userAgent.String
	s.Referrer = referrer.String
	s.UTMSource = utmSrc.String
	s.UTMMedium = utmMed.String
	s.UTMCampaign = utmCamp.String
	return &s, nil
}

func scanEventRow(row rowScanner) (*v1.Event, error) {
	var (
		e         v1.Event
		leadID    sql.NullInt64
		dataJSON  []byte
		pageURL   sql.NullString
		pageTitle sql.NullString
	)
	err := row.Scan(&e.ID, &e.SessionID, &leadID, &e.Type, &dataJSON, &pageURL, &pageTitle, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.LeadID = leadIDPtr(leadID)
	e.PageURL = pageURL.String
	e.PageTitle = pageTitle.String
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}
	return &e, nil
}

func scanLeadRow(row rowScanner) (*v1.Lead, error) {
	var (
		l         v1.Lead
		firstName sql.NullString
		lastName  sql.NullString
		company   sql.NullString
		phone     sql.NullString
	)
	err := row.Scan(&l.ID, &l.Email, &firstName, &lastName, &company, &phone, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.FirstName = firstName.String
	l.LastName = lastName.String
	l.Company = company.String
	l.Phone = phone.String
	return &l, nil
}

func scanLinkRow(row rowScanner) (*v1.TrackingLink, error) {
	var (
		l            v1.TrackingLink
		campaignID   sql.NullString
		campaignName sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.Token, &l.DestinationURL, &campaignID, &campaignName,
		&l.LeadID, &l.Clicks, &l.UniqueClicks, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.CampaignID = campaignID.String
	l.CampaignName = campaignName.String
	return &l, nil
}
