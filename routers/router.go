package routers

import (
	"BlockReel-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/items", api.CreateItem)
		v1.GET("/items/:item_id", api.GetItem)
		v1.DELETE("/items/:item_id", api.DeleteItem)
		v1.POST("/items/:item_id/script", api.GenerateItemScript)
		v1.POST("/items/:item_id/assemble", api.AssembleItem)
		v1.GET("/items/:item_id/blocks", api.ListBlocks)
		v1.GET("/blocks/:block_id", api.GetBlockDetail)
		v1.POST("/blocks/:block_id/input", api.UploadBlockInput)
		v1.POST("/blocks/:block_id/render", api.RenderBlock)
		v1.GET("/voices", api.ListVoices)
		v1.POST("/voices/clone", api.CloneVoice)
	}
	r.GET("/items/:item_id/progress/wss", api.ItemProgressWebSocket)
	return r
}
