package charset

// 各テーブルはプリセット構築用の生データです。重複はカタログ構築時に
// Dedup で取り除かれるため、テーブル間で文字が重なっても問題ありません。

// hiraganaTable はひらがな（U+3041〜）と長音・繰り返し記号です。
const hiraganaTable = "ぁあぃいぅうぇえぉおかがきぎくぐけげこごさざしじすずせぜそぞただちぢっつづてでとどなにぬねのはばぱひびぴふぶぷへべぺほぼぽまみむめもゃやゅゆょよらりるれろゎわゐゑをんゔゕゖ゛゜ゝゞー"

// katakanaTable はカタカナ（U+30A1〜）と中黒・長音・繰り返し記号です。
const katakanaTable = "ァアィイゥウェエォオカガキギクグケゲコゴサザシジスズセゼソゾタダチヂッツヅテデトドナニヌネノハバパヒビピフブプヘベペホボポマミムメモャヤュユョヨラリルレロヮワヰヱヲンヴヵヶヷヺ・ーヽヾ"

// punctuationTable は日本語組版で頻出する約物・記号類です。
const punctuationTable = "　、。，．・：；？！´｀¨＾￣＿〜―‐／＼…‥‘’“”（）〔〕［］｛｝〈〉《》「」『』【】＋−±×÷＝≠＜＞≦≧％＃＆＊＠§☆★○●◎◇◆□■△▲▽▼※〒→←↑↓"

// kanjiN5Table はJLPT N5相当の基礎漢字です。
const kanjiN5Table = "一二三四五六七八九十百千万円年月日時分半週火水木金土曜何人父母子男女友先生学校高大小中長私名前国語英外上下左右東西南北口目耳手足体天気雨山川海田町村駅道車電話会社店買売読書見聞言食飲行来帰出入立休白今午後間毎新古多少早安好"

// kanjiN4Table はN4で追加される漢字です（N5との累積でプリセットを構成）。
const kanjiN4Table = "悪暑寒暗明意味医者以兄弟姉妹夫妻家族親切有便利不自転運動地図旅館写真映画音楽歌世界質問題答用事仕使作品物持待特別勉強忘思考知教室習漢字研究試験宿題始終計通末朝昼夜夕方去最近夏冬春秋台風晴度送受取借貸返集洗料理野菜肉魚鳥牛卵茶飯着服病院薬歯熱元気疲死生活住所引建銀郵局公園美術神寺空港飛船橋信号曲角止歩走急心配全低遅黒赤青働"

// kanjiN3Table はN3で追加される漢字です。
const kanjiN3Table = "愛必要求職場員給料払値段割受付予約束変更関係連絡相談決定選択比較調査情報資説伝発表議論認許可禁規則法律違反罪警察判政治経済内部務省庁県市区役府挙投票権利義税産業農工商易輸協力競争成功失敗努続増減量率統平均差例件状況合原因結果影響効的段技発展進歩改善解課共常識非当然偶残念感謝礼慣由歴史文化宗芸演劇踊祭祝福幸辛苦悲喜怒驚恐怖戦争和勝負険存在過未現実夢希望番組放民衆師登泳消費貯換戻預確"

// kanjiN2Table はN2で追加される漢字です。
const kanjiN2Table = "押領域率砂糖塩酢油乾燥湿凍沸蒸煮焼混包装缶瓶袋箱畳床壁屋根窓鍵階段廊庭煙突管設備修繕壊故障整点検測温圧密濃薄厚硬軟鋭鈍粗細滑荒材鉄鋼銅鉛属樹脂繊維綿絹毛皮革紙灰炭石岩泥壌培穫漁牧畜飼育繁殖絶滅保護環境汚染害騒振廃棄処再循省源燃料電蓄均衡較繰越堤坪"

// kanjiN1Table はN1で追加される漢字です。
const kanjiN1Table = "曖昧畏怖鬱陶頑固飢餓窮屈享愚痴慶弔彙軌跡詐欺搾悔摯疾患遮蔽充填渋滞粛遵守尚奨励衝撃憧憬鐘殖侵迅速塵埃崇拝趨勢脆弱逝斉惜拙劣漸緻密衷鋳勅陳腐墜落諦洞察瞳篤頓挫捺薫陶該克虐狭謙懸顧娯慌硬拘剛懇魂搭"

// joyoTable は常用漢字表のうちJLPT級に現れない補完分です。
const joyoTable = "璽朕虞且遵但脹繭畝磁采塞柵刹拶斬恣腫呪蹴稽隙桁拳舷股虎乞勾梗喉駒頃痕沙挫彩斎埼柿顎曽爪鶴藤奈梨阜阪媛熊鹿"
