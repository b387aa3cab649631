package service

import (
	"testing"

	"link-porter/app/model"

	"github.com/stretchr/testify/assert"
)

func TestResolveByLinkKind(t *testing.T) {
	shareSave := []ExecutorOption{{ID: ExecutorShareSave115, Kind: ExecutorKindShareSave}}
	offline := []ExecutorOption{
		{ID: ExecutorOffline115, Kind: ExecutorKindOffline},
		{ID: "offline_other", Kind: ExecutorKindOffline},
	}
	r := NewTargetResolver(shareSave, offline)

	// 分享链接只走转存
	options := r.Resolve(model.Link{Kind: model.LinkKindShare115, ShareCode: "sw1abc"})
	assert.Len(t, options, 1)
	assert.Equal(t, ExecutorKindShareSave, options[0].Kind)

	// 可下载链接走离线
	for _, kind := range []model.LinkKind{model.LinkKindMagnet, model.LinkKindEd2k, model.LinkKindHTTP} {
		options := r.Resolve(model.Link{Kind: kind})
		assert.Len(t, options, 2, "kind=%s", kind)
		assert.Equal(t, ExecutorKindOffline, options[0].Kind)
	}

	// 无法识别的链接没有执行器
	assert.Empty(t, r.Resolve(model.Link{Kind: model.LinkKindUnknown}))
}

func TestResolveReturnsCopy(t *testing.T) {
	offline := []ExecutorOption{{ID: ExecutorOffline115, Kind: ExecutorKindOffline}}
	r := NewTargetResolver(nil, offline)

	options := r.Resolve(model.Link{Kind: model.LinkKindMagnet})
	options[0].ID = "mutated"

	again := r.Resolve(model.Link{Kind: model.LinkKindMagnet})
	assert.Equal(t, ExecutorOffline115, again[0].ID)
}
