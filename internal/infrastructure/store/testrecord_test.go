package store

type widget struct {
	Part  string `json:"part"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`

	version int64
}

func newWidget() *widget { return &widget{} }

func (w *widget) PartitionKey() string { return w.Part }
func (w *widget) RowKey() string       { return w.ID }
func (w *widget) GetVersion() int64    { return w.version }
func (w *widget) SetVersion(v int64)   { w.version = v }
