package setting

import (
	"context"

	"algoengine/internal/algo"
	"algoengine/internal/gateway/exchange"
)

// Collection 算法配置集合名
const Collection = "AlgoSetting"

// DocumentBackend keeps one document per setting, keyed by settingName.
type DocumentBackend struct {
	store exchange.DocumentStore
	db    string
}

func NewDocumentBackend(store exchange.DocumentStore, dbName string) *DocumentBackend {
	return &DocumentBackend{store: store, db: dbName}
}

func (d *DocumentBackend) Name() string { return "document" }

func (d *DocumentBackend) Load(ctx context.Context) ([]algo.Setting, error) {
	docs, err := d.store.Query(ctx, d.db, Collection, exchange.Document{}, algo.KeyTemplateName)
	if err != nil {
		return nil, err
	}
	out := make([]algo.Setting, 0, len(docs))
	for _, doc := range docs {
		out = append(out, algo.Setting(doc))
	}
	return out, nil
}

func (d *DocumentBackend) Save(ctx context.Context, _ []algo.Setting, changed algo.Setting) error {
	name := changed.SettingName()
	return d.store.Upsert(ctx, d.db, Collection, exchange.Document(changed), exchange.Document{algo.KeySettingName: name})
}

func (d *DocumentBackend) Delete(ctx context.Context, _ []algo.Setting, settingName string) error {
	return d.store.Delete(ctx, d.db, Collection, exchange.Document{algo.KeySettingName: settingName})
}
