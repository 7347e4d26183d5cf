// Package ingestion turns uploaded spreadsheets into parametric models:
// one workbook of objects, global parameters and relationships becomes a
// first version through the model service.
package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/models"
)

// ModelCreator is the slice of the model service ingestion needs.
type ModelCreator interface {
	Create(ctx context.Context, req models.CreateRequest) (domain.ParametricModel, error)
}

// Service parses workbooks and creates models from them.
type Service struct {
	creator ModelCreator
}

// NewService creates an ingestion service over the model facade.
func NewService(creator ModelCreator) *Service {
	return &Service{creator: creator}
}

// Request is one upload: a .xlsx workbook or a .csv object table.
type Request struct {
	ProjectID   uuid.UUID
	Name        string
	Description string
	FileName    string
	Data        io.Reader
}

// Summary reports what the upload produced.
type Summary struct {
	ModelID          uuid.UUID `json:"model_id"`
	Version          int64     `json:"version"`
	Objects          int       `json:"objects"`
	ObjectParameters int       `json:"object_parameters"`
	GlobalParameters int       `json:"global_parameters"`
	Relationships    int       `json:"relationships"`
}

// Ingest parses the upload and creates a first model version from it.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Summary{}, domain.ValidationError("model name is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return Summary{}, domain.ValidationError(fmt.Sprintf("failed to read upload: %v", err))
	}
	if len(payload) == 0 {
		return Summary{}, domain.ValidationError("uploaded file is empty")
	}

	var parsed parsedWorkbook
	switch strings.ToLower(filepath.Ext(req.FileName)) {
	case ".xlsx":
		parsed, err = parseWorkbook(payload)
	case ".csv":
		parsed, err = parseObjectsCSV(payload)
	default:
		return Summary{}, domain.ValidationError(fmt.Sprintf("unsupported file type %q, expected .xlsx or .csv", filepath.Ext(req.FileName)))
	}
	if err != nil {
		return Summary{}, err
	}

	created, err := s.creator.Create(ctx, models.CreateRequest{
		ProjectID:        req.ProjectID,
		Name:             req.Name,
		Description:      req.Description,
		Objects:          parsed.objects,
		GlobalParameters: parsed.globals,
		Relationships:    parsed.relationships,
		Metadata:         map[string]any{"importedFrom": req.FileName},
	})
	if err != nil {
		return Summary{}, err
	}

	parameterCount := 0
	for _, obj := range parsed.objects {
		parameterCount += len(obj.Parameters)
	}
	return Summary{
		ModelID:          created.ID,
		Version:          created.Version,
		Objects:          len(parsed.objects),
		ObjectParameters: parameterCount,
		GlobalParameters: len(parsed.globals),
		Relationships:    len(parsed.relationships),
	}, nil
}

type parsedWorkbook struct {
	objects       []domain.ModelObject
	globals       []domain.Parameter
	relationships []domain.Relationship
}

// parseWorkbook reads the Objects, GlobalParameters and Relationships sheets.
// Sheet and header names match case- and separator-insensitively.
func parseWorkbook(payload []byte) (parsedWorkbook, error) {
	file, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return parsedWorkbook{}, domain.ValidationError(fmt.Sprintf("failed to open workbook: %v", err))
	}
	defer file.Close()

	var parsed parsedWorkbook
	sawObjects := false
	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			return parsedWorkbook{}, domain.ValidationError(fmt.Sprintf("failed to read sheet %q: %v", sheet, err))
		}
		switch normalizeName(sheet) {
		case "objects":
			sawObjects = true
			parsed.objects, err = parseObjectRows(rows)
		case "globalparameters", "globals":
			parsed.globals, err = parseGlobalRows(rows)
		case "relationships":
			parsed.relationships, err = parseRelationshipRows(rows)
		}
		if err != nil {
			return parsedWorkbook{}, err
		}
	}

	if !sawObjects && len(parsed.globals) == 0 {
		return parsedWorkbook{}, domain.ValidationError("workbook has no Objects or GlobalParameters sheet")
	}
	return parsed, nil
}

// parseObjectsCSV treats a bare CSV file as the objects table.
func parseObjectsCSV(payload []byte) (parsedWorkbook, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return parsedWorkbook{}, domain.ValidationError(fmt.Sprintf("failed to parse csv: %v", err))
	}
	objects, err := parseObjectRows(rows)
	if err != nil {
		return parsedWorkbook{}, err
	}
	return parsedWorkbook{objects: objects}, nil
}

// parseObjectRows expects columns object_id, parameter, value and optional
// unit. Objects keep their first-appearance order.
func parseObjectRows(rows [][]string) ([]domain.ModelObject, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	columns, err := columnIndex(rows[0], []string{"objectid", "parameter", "value"})
	if err != nil {
		return nil, err
	}
	unitCol := optionalColumn(rows[0], "unit")

	var objects []domain.ModelObject
	index := map[string]int{}
	for rowNum, row := range rows[1:] {
		objectID := cell(row, columns["objectid"])
		name := cell(row, columns["parameter"])
		if objectID == "" && name == "" {
			continue
		}
		if objectID == "" || name == "" {
			return nil, domain.ValidationError(fmt.Sprintf("objects row %d: object id and parameter are required", rowNum+2))
		}

		position, ok := index[objectID]
		if !ok {
			position = len(objects)
			index[objectID] = position
			objects = append(objects, domain.ModelObject{ID: objectID})
		}
		objects[position].Parameters = append(objects[position].Parameters, domain.Parameter{
			Name:  name,
			Value: parseValue(cell(row, columns["value"])),
			Unit:  cell(row, unitCol),
		})
	}
	return objects, nil
}

// parseGlobalRows expects columns parameter, value and optional unit.
func parseGlobalRows(rows [][]string) ([]domain.Parameter, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	columns, err := columnIndex(rows[0], []string{"parameter", "value"})
	if err != nil {
		return nil, err
	}
	unitCol := optionalColumn(rows[0], "unit")

	var globals []domain.Parameter
	for rowNum, row := range rows[1:] {
		name := cell(row, columns["parameter"])
		if name == "" {
			if cell(row, columns["value"]) == "" {
				continue
			}
			return nil, domain.ValidationError(fmt.Sprintf("global parameters row %d: parameter name is required", rowNum+2))
		}
		globals = append(globals, domain.Parameter{
			Name:  name,
			Value: parseValue(cell(row, columns["value"])),
			Unit:  cell(row, unitCol),
		})
	}
	return globals, nil
}

// parseRelationshipRows expects columns source, target and optional type.
func parseRelationshipRows(rows [][]string) ([]domain.Relationship, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	columns, err := columnIndex(rows[0], []string{"source", "target"})
	if err != nil {
		return nil, err
	}
	typeCol := optionalColumn(rows[0], "type")

	var relationships []domain.Relationship
	for rowNum, row := range rows[1:] {
		source := cell(row, columns["source"])
		target := cell(row, columns["target"])
		if source == "" && target == "" {
			continue
		}
		if source == "" || target == "" {
			return nil, domain.ValidationError(fmt.Sprintf("relationships row %d: source and target are required", rowNum+2))
		}
		relationships = append(relationships, domain.Relationship{
			SourceID: source,
			TargetID: target,
			Type:     cell(row, typeCol),
		})
	}
	return relationships, nil
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	index := map[string]int{}
	for i, raw := range header {
		index[normalizeName(raw)] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, domain.ValidationError(fmt.Sprintf("missing required column %q", name))
		}
	}
	return index, nil
}

func optionalColumn(header []string, name string) int {
	for i, raw := range header {
		if normalizeName(raw) == name {
			return i
		}
	}
	return -1
}

func normalizeName(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "_", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	return cleaned
}

func cell(row []string, column int) string {
	if column < 0 || column >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[column])
}

// parseValue keeps spreadsheet cells loosely typed: booleans and numbers are
// recognized, everything else stays a string.
func parseValue(raw string) any {
	if raw == "" {
		return ""
	}
	if strings.EqualFold(raw, "true") {
		return true
	}
	if strings.EqualFold(raw, "false") {
		return false
	}
	if number, err := strconv.ParseFloat(raw, 64); err == nil {
		return number
	}
	return raw
}
