package etl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrtools/personio-export/pkg/client"
)

// Resource endpoints driven by the extractor.
const (
	endpointEmployees    = "company/employees"
	endpointEmployment   = "company/employment-details"
	endpointCompensation = "company/compensations"
	endpointDocuments    = "company/documents"
)

// Extractor assembles raw per-employee records from the four Personio
// resources, joining by employee id. Master data defines the employee
// universe; employment and compensation rows without a master record are
// dropped, master records without them keep empty parts.
type Extractor struct {
	gw     *client.Gateway
	logger zerolog.Logger
}

// NewExtractor creates an extractor on top of the gateway.
func NewExtractor(gw *client.Gateway) *Extractor {
	return &Extractor{
		gw:     gw,
		logger: log.With().Str("component", "extractor").Logger(),
	}
}

// ExtractAll pulls all four resources and returns the joined records in
// master-data order plus the document references for known employees.
// Any resource fetch that exhausts retries fails the whole extraction.
func (e *Extractor) ExtractAll(ctx context.Context) ([]RawEmployeeRecord, []DocumentRef, error) {
	ordered, index, err := e.fetchEmployees(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch employees: %w", err)
	}
	e.logger.Info().Int("employees", len(ordered)).Msg("Fetched employee master data")

	if err := e.fetchEmployment(ctx, index); err != nil {
		return nil, nil, fmt.Errorf("fetch employment details: %w", err)
	}

	if err := e.fetchCompensation(ctx, index); err != nil {
		return nil, nil, fmt.Errorf("fetch compensation: %w", err)
	}

	docs, err := e.fetchDocumentRefs(ctx, index)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document metadata: %w", err)
	}
	e.logger.Info().Int("documents", len(docs)).Msg("Fetched document metadata")

	records := make([]RawEmployeeRecord, len(ordered))
	for i, rec := range ordered {
		records[i] = *rec
	}

	return records, docs, nil
}

// rawEmployee is the wire shape of one master-data record.
type rawEmployee struct {
	Attributes Attributes `json:"attributes"`
}

// fetchEmployees builds the authoritative employee universe in server order.
func (e *Extractor) fetchEmployees(ctx context.Context) ([]*RawEmployeeRecord, map[string]*RawEmployeeRecord, error) {
	records := make([]*RawEmployeeRecord, 0, 128)
	index := make(map[string]*RawEmployeeRecord)

	it := e.gw.Paginate(endpointEmployees, nil)
	for it.Next(ctx) {
		pageRecords, _ := it.Page().Records()
		for _, raw := range pageRecords {
			var emp rawEmployee
			if err := json.Unmarshal(raw, &emp); err != nil {
				e.logger.Warn().Err(err).Msg("Skipping unparsable employee record")
				continue
			}

			id := emp.Attributes.StringValue("id")
			if id == "" {
				e.logger.Warn().Msg("Skipping employee record without id")
				continue
			}
			if _, exists := index[id]; exists {
				e.logger.Warn().Str("employee_id", id).Msg("Duplicate employee id, keeping first occurrence")
				continue
			}

			rec := &RawEmployeeRecord{
				EmployeeID: id,
				Master:     emp.Attributes,
			}
			records = append(records, rec)
			index[id] = rec
		}
	}
	if err := it.Err(); err != nil {
		return nil, nil, err
	}

	return records, index, nil
}

// fetchEmployment enriches known employees with employment details.
func (e *Extractor) fetchEmployment(ctx context.Context, index map[string]*RawEmployeeRecord) error {
	matched := 0

	it := e.gw.Paginate(endpointEmployment, nil)
	for it.Next(ctx) {
		pageRecords, _ := it.Page().Records()
		for _, raw := range pageRecords {
			var detail EmploymentDetail
			if err := json.Unmarshal(raw, &detail); err != nil {
				e.logger.Warn().Err(err).Msg("Skipping unparsable employment record")
				continue
			}

			// Employment rows without a master-data employee are dropped.
			rec, ok := index[detail.EmployeeID.String()]
			if !ok {
				continue
			}
			d := detail
			rec.Employment = &d
			matched++
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	e.logger.Info().Int("matched", matched).Msg("Fetched employment details")
	return nil
}

// fetchCompensation enriches known employees with compensation data.
func (e *Extractor) fetchCompensation(ctx context.Context, index map[string]*RawEmployeeRecord) error {
	matched := 0

	it := e.gw.Paginate(endpointCompensation, nil)
	for it.Next(ctx) {
		pageRecords, _ := it.Page().Records()
		for _, raw := range pageRecords {
			var comp Compensation
			if err := json.Unmarshal(raw, &comp); err != nil {
				e.logger.Warn().Err(err).Msg("Skipping unparsable compensation record")
				continue
			}

			rec, ok := index[comp.EmployeeID.String()]
			if !ok {
				continue
			}
			c := comp
			rec.Compensation = &c
			matched++
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	e.logger.Info().Int("matched", matched).Msg("Fetched compensation data")
	return nil
}

// rawDocument is the wire shape of one document-metadata record.
type rawDocument struct {
	ID         json.Number `json:"id"`
	EmployeeID json.Number `json:"employee_id"`
	Title      string      `json:"title"`
	Extension  string      `json:"extension"`
}

// fetchDocumentRefs collects document references for known employees.
func (e *Extractor) fetchDocumentRefs(ctx context.Context, index map[string]*RawEmployeeRecord) ([]DocumentRef, error) {
	var refs []DocumentRef

	it := e.gw.Paginate(endpointDocuments, nil)
	for it.Next(ctx) {
		pageRecords, _ := it.Page().Records()
		for _, raw := range pageRecords {
			var doc rawDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				e.logger.Warn().Err(err).Msg("Skipping unparsable document record")
				continue
			}

			employeeID := doc.EmployeeID.String()
			if _, ok := index[employeeID]; !ok {
				continue
			}

			refs = append(refs, DocumentRef{
				EmployeeID: employeeID,
				DocumentID: doc.ID.String(),
				Title:      doc.Title,
				Extension:  doc.Extension,
			})
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}
