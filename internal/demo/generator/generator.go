package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// StoreRow is one store's result in the A/B experiment (table tiendas).
type StoreRow struct {
	TiendaID       string  `parquet:"tienda_id" json:"tienda_id"`
	Region         string  `parquet:"region" json:"region"`
	TipoTienda     string  `parquet:"tipo_tienda" json:"tipo_tienda"`
	Experimento    string  `parquet:"experimento" json:"experimento"`
	Usuarios       int64   `parquet:"usuarios" json:"usuarios"`
	Conversiones   int64   `parquet:"conversiones" json:"conversiones"`
	Revenue        float64 `parquet:"revenue" json:"revenue"`
	ConversionRate float64 `parquet:"conversion_rate" json:"conversion_rate"`
}

// MasterRow is the store master record (table maestro_tiendas).
type MasterRow struct {
	TiendaID      string `parquet:"tienda_id" json:"tienda_id"`
	NombreTienda  string `parquet:"nombre_tienda" json:"nombre_tienda"`
	FechaApertura string `parquet:"fecha_apertura" json:"fecha_apertura"`
	Gerente       string `parquet:"gerente" json:"gerente"`
}

type Dataset struct {
	Stores []StoreRow
	Master []MasterRow
}

var storeNames = []string{
	"Plaza Central", "Mall Norte", "Centro Comercial Sur", "Tienda Principal",
	"Galería Este", "Megastore Oeste", "Local Premium", "Shopping Boulevard",
	"Centro Urbano", "Plaza Mayor", "Mall Ejecutivo", "Tienda Express",
	"Galería Moderna", "Centro Elite", "Plaza VIP", "Mall Excellence",
	"Tienda Flagship", "Centro Premium", "Plaza Business", "Mall Innovation",
}

// Generator produces the retail experiment datasets. The same seed always yields the same rows.
type Generator struct {
	rnd    *rand.Rand
	stores int
}

func NewGenerator(seed int64, stores int) *Generator {
	if stores <= 0 {
		stores = DefaultStores
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), stores: stores}
}

func (g *Generator) Generate() Dataset {
	data := Dataset{
		Stores: make([]StoreRow, 0, g.stores),
		Master: make([]MasterRow, 0, g.stores),
	}
	for i := 1; i <= g.stores; i++ {
		id := fmt.Sprintf("T%03d", i)
		experiment := "control"
		if i%2 == 0 {
			experiment = "test"
		}
		data.Stores = append(data.Stores, g.storeRow(id, experiment))
		data.Master = append(data.Master, g.masterRow(i-1, id))
	}
	return data
}

func (g *Generator) storeRow(id, experiment string) StoreRow {
	storeType := pickOne(g.rnd, []string{"mall", "street", "outlet"})
	users := int64(200 + g.rnd.Intn(1800))

	rate := 0.02 + g.rnd.Float64()*0.06
	if experiment == "test" {
		rate += 0.01
	}
	if storeType == "mall" {
		rate += 0.005
	}
	conversions := int64(math.Round(float64(users) * rate))
	ticket := 25 + g.rnd.Float64()*75
	return StoreRow{
		TiendaID:       id,
		Region:         pickOne(g.rnd, []string{"Norte", "Sur", "Este", "Oeste"}),
		TipoTienda:     storeType,
		Experimento:    experiment,
		Usuarios:       users,
		Conversiones:   conversions,
		Revenue:        round2(float64(conversions) * ticket),
		ConversionRate: round4(float64(conversions) / float64(users)),
	}
}

func (g *Generator) masterRow(index int, id string) MasterRow {
	opened := time.Date(2020, time.Month(1+g.rnd.Intn(12)), 1+g.rnd.Intn(28), 0, 0, 0, 0, time.UTC)
	return MasterRow{
		TiendaID:      id,
		NombreTienda:  fmt.Sprintf("%s %s", storeNames[index%len(storeNames)], id[len(id)-3:]),
		FechaApertura: opened.Format(time.DateOnly),
		Gerente:       fmt.Sprintf("Gerente_%d", 1000+g.rnd.Intn(9000)),
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
