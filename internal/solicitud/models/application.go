// Package models holds the two intake forms and their local rules.
package models

import (
	"encoding/json"
	"strings"

	"intake/pkg/validation"
)

// Allowed values for the select fields of the credit application.
var (
	DocumentTypes   = []string{"CC", "CE", "PA", "TI"}
	MaritalStatuses = []string{"soltero", "casado", "union", "divorciado", "viudo"}
	Genders         = []string{"masculino", "femenino", "otro"}
	ContractTypes   = []string{"indefinido", "fijo", "prestacion", "independiente"}
	EmploymentTimes = []string{"menos6", "6a12", "1a2", "2a5", "mas5"}
	TermsInMonths   = []string{"12", "24", "36", "48", "60", "72"}
)

// Application is a credit application (solicitud de crédito). ID and
// FechaSolicitud are assigned by storage and never changed afterwards.
type Application struct {
	ID             string `json:"id,omitempty"`
	FechaSolicitud string `json:"fechaSolicitud,omitempty"`

	NombreCompleto  string `json:"nombreCompleto" validate:"notblank"`
	TipoDocumento   string `json:"tipoDocumento" validate:"notblank,oneof=CC CE PA TI"`
	NumeroDocumento string `json:"numeroDocumento" validate:"notblank"`
	FechaNacimiento string `json:"fechaNacimiento" validate:"notblank,adult"`
	EstadoCivil     string `json:"estadoCivil" validate:"notblank,oneof=soltero casado union divorciado viudo"`
	Genero          string `json:"genero" validate:"notblank,oneof=masculino femenino otro"`
	Telefono        string `json:"telefono" validate:"notblank"`
	Email           string `json:"email" validate:"notblank,email"`
	Direccion       string `json:"direccion" validate:"notblank"`
	Ciudad          string `json:"ciudad" validate:"notblank"`
	Departamento    string `json:"departamento" validate:"notblank"`

	Ocupacion         string  `json:"ocupacion" validate:"notblank"`
	Empresa           string  `json:"empresa" validate:"notblank"`
	CargoActual       string  `json:"cargoActual" validate:"notblank"`
	TipoContrato      string  `json:"tipoContrato" validate:"notblank,oneof=indefinido fijo prestacion independiente"`
	IngresosMensuales Numeric `json:"ingresosMensuales" validate:"notblank"`
	TiempoEmpleo      string  `json:"tiempoEmpleo" validate:"notblank,oneof=menos6 6a12 1a2 2a5 mas5"`

	MontoSolicitado Numeric `json:"montoSolicitado" validate:"notblank"`
	PlazoMeses      Numeric `json:"plazoMeses" validate:"notblank,oneof=12 24 36 48 60 72"`
	Proposito       string  `json:"proposito" validate:"notblank"`
	TieneDeudas     string  `json:"tieneDeudas" validate:"notblank,oneof=si no"`
	MontoDeudas     Numeric `json:"montoDeudas,omitempty" validate:"required_if=TieneDeudas si"`

	RefNombre1   string `json:"refNombre1" validate:"notblank"`
	RefTelefono1 string `json:"refTelefono1" validate:"notblank"`
	RefRelacion1 string `json:"refRelacion1" validate:"notblank"`
	RefNombre2   string `json:"refNombre2" validate:"notblank"`
	RefTelefono2 string `json:"refTelefono2" validate:"notblank"`
	RefRelacion2 string `json:"refRelacion2" validate:"notblank"`

	// Set by the Upstream API; carried through listings untouched.
	Estado    string          `json:"estado,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty"`
}

// Validate reports every violated rule at once.
func (a Application) Validate() error {
	errs := validation.Check(a)
	if a.TieneDeudas == "si" && strings.TrimSpace(string(a.MontoDeudas)) == "" && !hasField(errs, "montoDeudas") {
		errs = append(errs, validation.FieldError{
			Field:   "montoDeudas",
			Message: `montoDeudas is required when tieneDeudas is "si"`,
		})
	}
	return errs.Err()
}

// Prepare returns the payload sent upstream: strings trimmed, email
// lowercased, amounts reduced to digits. montoDeudas is only kept when the
// applicant declared debts and the amount is not zero.
func (a Application) Prepare() Application {
	t := strings.TrimSpace
	out := Application{
		NombreCompleto:    t(a.NombreCompleto),
		TipoDocumento:     t(a.TipoDocumento),
		NumeroDocumento:   t(a.NumeroDocumento),
		FechaNacimiento:   t(a.FechaNacimiento),
		EstadoCivil:       t(a.EstadoCivil),
		Genero:            t(a.Genero),
		Telefono:          t(a.Telefono),
		Email:             strings.ToLower(t(a.Email)),
		Direccion:         t(a.Direccion),
		Ciudad:            t(a.Ciudad),
		Departamento:      t(a.Departamento),
		Ocupacion:         t(a.Ocupacion),
		Empresa:           t(a.Empresa),
		CargoActual:       t(a.CargoActual),
		TipoContrato:      t(a.TipoContrato),
		IngresosMensuales: Numeric(a.IngresosMensuales.Digits()),
		TiempoEmpleo:      t(a.TiempoEmpleo),
		MontoSolicitado:   Numeric(a.MontoSolicitado.Digits()),
		PlazoMeses:        Numeric(t(string(a.PlazoMeses))),
		Proposito:         t(a.Proposito),
		TieneDeudas:       t(a.TieneDeudas),
		RefNombre1:        t(a.RefNombre1),
		RefTelefono1:      t(a.RefTelefono1),
		RefRelacion1:      t(a.RefRelacion1),
		RefNombre2:        t(a.RefNombre2),
		RefTelefono2:      t(a.RefTelefono2),
		RefRelacion2:      t(a.RefRelacion2),
	}
	if out.TieneDeudas == "si" && a.MontoDeudas.Int64() != 0 {
		out.MontoDeudas = Numeric(a.MontoDeudas.Digits())
	}
	return out
}

func hasField(errs validation.Errors, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}
