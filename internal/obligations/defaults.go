package obligations

func annualWindow(startMonth, startDay, endMonth, endDay int) *WindowSpec {
	return &WindowSpec{YearOffset: 1, StartMonth: startMonth, StartDay: startDay, EndMonth: endMonth, EndDay: endDay}
}

func installment(number, cutoff, month int) Installment {
	return Installment{
		Number:      number,
		CutoffMonth: cutoff,
		Window:      WindowSpec{StartMonth: month, StartDay: 1, EndMonth: month, EndDay: DefaultDueDay},
	}
}

var (
	monthlyOrQuarterly = []Periodicity{PeriodicityMonthly, PeriodicityQuarterly}
	quarterlyOnly      = []Periodicity{PeriodicityQuarterly}
	annualOnly         = []Periodicity{PeriodicityAnnual}

	autonomoOnly       = []ClientType{ClientAutonomo}
	empresaOnly        = []ClientType{ClientEmpresa}
	autonomoOrEmpresa  = []ClientType{ClientAutonomo, ClientEmpresa}
	autonomoOrPersonal = []ClientType{ClientAutonomo, ClientParticular}
)

// DefaultRules returns the AEAT models handled by the firm.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "100", Name: "IRPF - Declaración de la Renta", Periodicities: annualOnly, Annual: annualWindow(4, 1, 6, 30), AllowedClientTypes: autonomoOrPersonal},
		{Code: "111", Name: "Retenciones - Modelo 111", Periodicities: monthlyOrQuarterly, AllowedClientTypes: autonomoOrEmpresa},
		{Code: "130", Name: "IRPF - Pago fraccionado (actividades económicas)", Periodicities: quarterlyOnly, AllowedClientTypes: autonomoOnly},
		{Code: "131", Name: "IRPF - Pago fraccionado (estimación directa)", Periodicities: quarterlyOnly, AllowedClientTypes: autonomoOnly},
		{Code: "180", Name: "Retenciones - Alquileres", Periodicities: annualOnly, Annual: annualWindow(1, 1, 1, 0), AllowedClientTypes: autonomoOrEmpresa},
		{Code: "190", Name: "Retenciones - Resumen anual", Periodicities: annualOnly, Annual: annualWindow(1, 1, 1, 0), AllowedClientTypes: autonomoOrEmpresa},
		{Code: "200", Name: "Impuesto sobre Sociedades", Periodicities: annualOnly, Annual: &WindowSpec{YearOffset: 1, StartMonth: 7, StartDay: 1, Days: 25}, AllowedClientTypes: empresaOnly},
		{
			Code:               "202",
			Name:               "Pagos fraccionados IS",
			Periodicities:      []Periodicity{PeriodicitySpecial},
			Installments:       []Installment{installment(1, 3, 4), installment(2, 9, 10), installment(3, 11, 12)},
			AllowedClientTypes: empresaOnly,
		},
		{Code: "303", Name: "IVA - Autoliquidación", Periodicities: monthlyOrQuarterly, AllowedClientTypes: autonomoOrEmpresa},
		{Code: "347", Name: "Operaciones con terceras personas", Periodicities: annualOnly, Annual: annualWindow(2, 1, 2, 0), AllowedClientTypes: autonomoOrEmpresa},
		{Code: "349", Name: "Operaciones intracomunitarias", Periodicities: monthlyOrQuarterly, AllowedClientTypes: autonomoOrEmpresa},
		{Code: "390", Name: "IVA - Resumen anual", Periodicities: annualOnly, Annual: annualWindow(1, 1, 1, 30), AllowedClientTypes: autonomoOrEmpresa},
		{Code: "720", Name: "Bienes en el extranjero", Periodicities: annualOnly, Annual: annualWindow(1, 1, 3, 31), AllowedClientTypes: autonomoOrEmpresa},
	}
}

// DefaultCatalog returns the catalog built from DefaultRules.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRules()...)
	if err != nil {
		panic(err)
	}
	return c
}
